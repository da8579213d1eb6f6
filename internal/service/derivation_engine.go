package service

import (
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/oscillometry-report-server/internal/domain"
)

// Row labels of the report table.
const (
	LabelZ5             = "Дыхательный импеданс (Z5)"
	LabelRrs5           = "Резистивное сопротивление на частоте 5 Гц (Rrs5)"
	LabelRrs20          = "Резистивное сопротивление на частоте 20 Гц (Rrs20)"
	LabelFrequencyDep   = "Абсолютная частотная зависимость"
	LabelX5             = "Реактивное сопротивление на частоте 5 Гц (X5)"
	LabelX5Shift        = "Сдвиг реактивного сопротивления от должной величины на частоте 5 Гц"
	LabelFres           = "Резонансная частота (Fres)"
	LabelReactanceArea  = "Площадь под кривой реактивного сопротивления"
	headerSeverityLabel = "Степень нарушений"
)

var headerLabels = [8]string{
	"Анализируемый показатель",
	"Абсолютные до ингаляции",
	"Значение до ингаляции бронхолитика",
	headerSeverityLabel,
	"Абсолютные после ингаляции",
	"Значение после ингаляции бронхолитика",
	headerSeverityLabel,
	"Разница",
}

var columns = [8]string{"F", "G", "H", "I", "J", "K", "L", "M"}

// DerivationEngine turns raw cell values into the report table and conclusions.
// It holds no per-report state: Compute is a pure function of its arguments.
type DerivationEngine struct {
	logger *logrus.Logger
	rules  []*conclusionRule
}

// NewDerivationEngine creates a new derivation engine
func NewDerivationEngine(logger *logrus.Logger) *DerivationEngine {
	engine := &DerivationEngine{logger: logger}
	engine.initializeRules()
	return engine
}

// Rules lists the conclusion slots in order.
func (e *DerivationEngine) Rules() []RuleInfo {
	out := make([]RuleInfo, len(e.rules))
	for i, r := range e.rules {
		out[i] = r.RuleInfo
	}
	return out
}

// Compute derives the full report for cells at the given display precision. Missing or
// unparsable cells read as zero. A negative precision is formatted as zero decimals.
func (e *DerivationEngine) Compute(cells map[domain.CellKey]string, precision int) *domain.Report {
	m := measurements(cells)
	in := m.ruleInput()

	report := &domain.Report{
		Precision:     precision,
		Table:         e.buildTable(m, in.intermediates, precision),
		Conclusions:   make([]domain.Conclusion, 0, len(e.rules)),
		Intermediates: in.intermediates,
	}

	positives := 0
	for _, rule := range e.rules {
		text, positive := rule.evaluate(in)
		if positive {
			positives++
		}
		report.Conclusions = append(report.Conclusions, domain.Conclusion{
			Slot:     rule.Slot,
			Code:     rule.Code,
			Text:     text,
			Positive: positive,
		})
	}

	e.logger.WithFields(logrus.Fields{
		"precision":            precision,
		"positive_conclusions": positives,
	}).Debug("Computed report")

	return report
}

// measurements gives numeric access to raw cell text.
type measurements map[domain.CellKey]string

func (m measurements) get(key domain.CellKey) float64 {
	return ParseLocalizedNumber(m[key])
}

func (m measurements) ruleInput() *ruleInput {
	h9 := m.get(domain.CellG7) - m.get(domain.CellG8)
	k9 := m.get(domain.CellJ7) - m.get(domain.CellJ8)
	m7, _ := percentChange(m.get(domain.CellG7), m.get(domain.CellJ7))
	m12, _ := percentChange(m.get(domain.CellH12), m.get(domain.CellK12))
	m13, _ := percentChange(m.get(domain.CellH13), m.get(domain.CellK13))

	return &ruleInput{
		before: sideValues{
			freqDep: h9,
			rrs5:    m.get(domain.CellH7),
			rrs20:   m.get(domain.CellH8),
			x5:      m.get(domain.CellH10),
			fres:    m.get(domain.CellH12),
		},
		after: sideValues{
			freqDep: k9,
			rrs5:    m.get(domain.CellK7),
			rrs20:   m.get(domain.CellK8),
			x5:      m.get(domain.CellK10),
			fres:    m.get(domain.CellK12),
		},
		intermediates: domain.Intermediates{
			H9:  h9,
			K9:  k9,
			M7:  m7,
			M9:  k9 - h9,
			M12: m12,
			M13: m13,
		},
	}
}

func (e *DerivationEngine) buildTable(m measurements, in domain.Intermediates, precision int) domain.ReportTable {
	table := make(domain.ReportTable, 0, 9)

	var header domain.TableRow
	for i, label := range headerLabels {
		header[i] = domain.TableCell{ID: columns[i] + "5", Value: label, Bold: true}
	}
	table = append(table, header)

	// Z5
	row := measuredRow(m, 6, LabelZ5, ImpedanceScale)
	row[7].Bold = true
	table = append(table, row)

	// Rrs5 carries the percentage change after inhalation
	row = measuredRow(m, 7, LabelRrs5, Resistance5Scale)
	row[7] = percentCell("M7", m.get(domain.CellG7), m.get(domain.CellJ7), precision)
	table = append(table, row)

	table = append(table, measuredRow(m, 8, LabelRrs20, Resistance20Scale))

	// Frequency dependence is derived only
	table = append(table, domain.TableRow{
		labelCell("F9", LabelFrequencyDep),
		blankCell("G9"),
		derivedCell("H9", RoundNumber(in.H9, precision)),
		derivedCell("I9", FrequencyDepScale.Classify(in.H9)),
		blankCell("J9"),
		derivedCell("K9", RoundNumber(in.K9, precision)),
		derivedCell("L9", FrequencyDepScale.Classify(in.K9)),
		derivedCell("M9", RoundNumber(in.M9, precision)),
	})

	table = append(table, valueOnlyRow(m, 10, LabelX5, &ReactanceScale))
	table = append(table, valueOnlyRow(m, 11, LabelX5Shift, &ReactanceShiftScale))

	row = valueOnlyRow(m, 12, LabelFres, &ResonanceFreqScale)
	row[7] = percentCell("M12", m.get(domain.CellH12), m.get(domain.CellK12), precision)
	table = append(table, row)

	row = valueOnlyRow(m, 13, LabelReactanceArea, nil)
	row[7] = percentCell("M13", m.get(domain.CellH13), m.get(domain.CellK13), precision)
	table = append(table, row)

	return table
}

// measuredRow builds a row where absolute and value cells are editable on both sides.
func measuredRow(m measurements, n int, label string, scale SeverityScale) domain.TableRow {
	id := func(col string) string { return col + strconv.Itoa(n) }
	h := domain.CellKey(id("H"))
	k := domain.CellKey(id("K"))
	return domain.TableRow{
		labelCell(id("F"), label),
		editableCell(m, domain.CellKey(id("G"))),
		editableCell(m, h),
		derivedCell(id("I"), scale.Classify(m.get(h))),
		editableCell(m, domain.CellKey(id("J"))),
		editableCell(m, k),
		derivedCell(id("L"), scale.Classify(m.get(k))),
		blankCell(id("M")),
	}
}

// valueOnlyRow builds a row with editable value cells only. A nil scale leaves the
// severity columns blank.
func valueOnlyRow(m measurements, n int, label string, scale *SeverityScale) domain.TableRow {
	id := func(col string) string { return col + strconv.Itoa(n) }
	h := domain.CellKey(id("H"))
	k := domain.CellKey(id("K"))
	row := domain.TableRow{
		labelCell(id("F"), label),
		blankCell(id("G")),
		editableCell(m, h),
		blankCell(id("I")),
		blankCell(id("J")),
		editableCell(m, k),
		blankCell(id("L")),
		blankCell(id("M")),
	}
	if scale != nil {
		row[3].Value = scale.Classify(m.get(h))
		row[6].Value = scale.Classify(m.get(k))
	}
	return row
}

func percentCell(id string, before, after float64, precision int) domain.TableCell {
	change, ok := percentChange(before, after)
	if !ok {
		return derivedCell(id, DivisionByZero)
	}
	return derivedCell(id, RoundNumber(change, precision))
}

func labelCell(id, label string) domain.TableCell {
	return domain.TableCell{ID: id, Value: label, Bold: true}
}

func blankCell(id string) domain.TableCell {
	return domain.TableCell{ID: id}
}

func derivedCell(id, value string) domain.TableCell {
	return domain.TableCell{ID: id, Value: value}
}

func editableCell(m measurements, key domain.CellKey) domain.TableCell {
	return domain.TableCell{ID: string(key), Value: m[key], Editable: true}
}
