package service

import (
	"github.com/oscillometry-report-server/internal/domain"
)

// Conclusion texts. Each finding has a positive and a negative wording.
const (
	TextPeripheralObstruction   = "Выявлены признаки обструкции периферических дыхательных путей"
	TextNoPeripheralObstruction = "Признаков обструкции периферических дыхательных путей не выявлено"
	TextCentralObstruction      = "Выявлены признаки обструкции центральных дыхательных путей"
	TextNoCentralObstruction    = "Признаков обструкции центральных отделов дыхательных путей не выявлено"
	TextGeneralizedObstruction  = "Выявлены признаки генерализованной обструкции дыхательных путей"
	TextNoGeneralized           = "Признаков генерализованной обструкции дыхательных путей не выявлено"
	TextRestrictionSuspected    = "Нельзя исключить наличие рестриктивных нарушений"
	TextNoRestriction           = "Признаков рестриктивных нарушений не выявлено"
)

// Rule thresholds.
const (
	freqDepThreshold     = 0.09
	rrs5Threshold        = 137
	rrs20Threshold       = 136
	fresThreshold        = 15
	x5Threshold          = -0.15
	m7ResponseThreshold  = -20
	m9ResponseThreshold  = 0.04
	m12ResponseThreshold = -20
	m13ResponseThreshold = -40
)

// ConclusionSlots is the number of fixed conclusion slots produced by Compute.
const ConclusionSlots = 9

// BronchodilatorVerdict is the outcome of the bronchodilator test.
type BronchodilatorVerdict string

const (
	VerdictPositive     BronchodilatorVerdict = "положительная"
	VerdictQuestionable BronchodilatorVerdict = "сомнительная"
	VerdictNegative     BronchodilatorVerdict = "отрицательная"
)

// Text returns the conclusion sentence for the verdict.
func (v BronchodilatorVerdict) Text() string {
	return "Проба с бронхолитиком " + string(v)
}

// EvaluateBronchodilatorResponse classifies the response from the percentage intermediates.
// A strong drop in both Rrs5 and the reactance area is positive; any single signal is questionable.
func EvaluateBronchodilatorResponse(in domain.Intermediates) BronchodilatorVerdict {
	if in.M7 < m7ResponseThreshold && in.M13 < m13ResponseThreshold {
		return VerdictPositive
	}
	if in.M7 < m7ResponseThreshold || in.M9 > m9ResponseThreshold || in.M12 < m12ResponseThreshold || in.M13 < m13ResponseThreshold {
		return VerdictQuestionable
	}
	return VerdictNegative
}

// sideValues are the measurements of one side of the test (before or after inhalation).
type sideValues struct {
	freqDep float64
	rrs5    float64
	rrs20   float64
	x5      float64
	fres    float64
}

type ruleInput struct {
	before        sideValues
	after         sideValues
	intermediates domain.Intermediates
}

// RuleInfo describes one fixed conclusion slot.
type RuleInfo struct {
	Slot        int    `json:"slot"`
	Code        string `json:"code"`
	Description string `json:"description"`
}

type conclusionRule struct {
	RuleInfo
	evaluate func(in *ruleInput) (text string, positive bool)
}

func (e *DerivationEngine) initializeRules() {
	// Before bronchodilator
	e.addRule(1, "PERIPHERAL_OBSTRUCTION_BEFORE", "Frequency dependence of resistance before inhalation", beforeSide(peripheralObstruction))
	e.addRule(2, "CENTRAL_OBSTRUCTION_BEFORE", "Raised Rrs5 and Rrs20 with normal frequency dependence before inhalation", beforeSide(centralObstruction))
	e.addRule(3, "GENERALIZED_OBSTRUCTION_BEFORE", "Raised Rrs5 and Rrs20 with raised frequency dependence before inhalation", beforeSide(generalizedObstruction))
	e.addRule(4, "RESTRICTION_SUSPECTED_BEFORE", "Normal Rrs5 with raised Fres and lowered X5 before inhalation", beforeSide(restrictionSuspected))

	// After bronchodilator
	e.addRule(5, "PERIPHERAL_OBSTRUCTION_AFTER", "Frequency dependence of resistance after inhalation", afterSide(peripheralObstruction))
	e.addRule(6, "CENTRAL_OBSTRUCTION_AFTER", "Raised Rrs5 and Rrs20 with normal frequency dependence after inhalation", afterSide(centralObstruction))
	e.addRule(7, "GENERALIZED_OBSTRUCTION_AFTER", "Raised Rrs5 and Rrs20 with raised frequency dependence after inhalation", afterSide(generalizedObstruction))
	e.addRule(8, "RESTRICTION_SUSPECTED_AFTER", "Normal Rrs5 with raised Fres and lowered X5 after inhalation", afterSide(restrictionSuspected))

	e.addRule(9, "BRONCHODILATOR_RESPONSE", "Bronchodilator test verdict", func(in *ruleInput) (string, bool) {
		verdict := EvaluateBronchodilatorResponse(in.intermediates)
		return verdict.Text(), verdict != VerdictNegative
	})
}

func (e *DerivationEngine) addRule(slot int, code, description string, evaluator func(in *ruleInput) (string, bool)) {
	e.rules = append(e.rules, &conclusionRule{
		RuleInfo: RuleInfo{Slot: slot, Code: code, Description: description},
		evaluate: evaluator,
	})
}

func beforeSide(rule func(sideValues) (string, bool)) func(in *ruleInput) (string, bool) {
	return func(in *ruleInput) (string, bool) { return rule(in.before) }
}

func afterSide(rule func(sideValues) (string, bool)) func(in *ruleInput) (string, bool) {
	return func(in *ruleInput) (string, bool) { return rule(in.after) }
}

func peripheralObstruction(s sideValues) (string, bool) {
	if s.freqDep >= freqDepThreshold {
		return TextPeripheralObstruction, true
	}
	return TextNoPeripheralObstruction, false
}

func centralObstruction(s sideValues) (string, bool) {
	if s.freqDep < freqDepThreshold && s.rrs5 >= rrs5Threshold && s.rrs20 >= rrs20Threshold {
		return TextCentralObstruction, true
	}
	return TextNoCentralObstruction, false
}

func generalizedObstruction(s sideValues) (string, bool) {
	if s.freqDep >= freqDepThreshold && s.rrs5 >= rrs5Threshold && s.rrs20 >= rrs20Threshold {
		return TextGeneralizedObstruction, true
	}
	return TextNoGeneralized, false
}

func restrictionSuspected(s sideValues) (string, bool) {
	if s.rrs5 < rrs5Threshold && s.fres >= fresThreshold && s.x5 <= x5Threshold {
		return TextRestrictionSuspected, true
	}
	return TextNoRestriction, false
}
