package priorart

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Report section headings produced by the synthesizer.
const (
	SectionExecutiveSummary = "## 1. 종합 검토 의견 (Executive Summary)"
	SectionStrategicAdvice  = "## 2. 기술적 제언 (Strategic Advice)"
)

// Report is the final markdown assessment of a run.
type Report struct {
	Markdown           string `json:"markdown"`
	NoRelevantPriorArt bool   `json:"no_relevant_prior_art"`
}

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// HTML renders the report markdown.
func (r Report) HTML() (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(r.Markdown), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// MissingSections returns the required headings absent from the markdown.
func (r Report) MissingSections() []string {
	var missing []string
	for _, h := range []string{SectionExecutiveSummary, SectionStrategicAdvice} {
		if !strings.Contains(r.Markdown, h) {
			missing = append(missing, h)
		}
	}
	return missing
}

// NoRelevantPriorArtReport is the fixed report for a run whose retrieval
// produced no candidates.
func NoRelevantPriorArtReport() Report {
	md := SectionExecutiveSummary + "\n\n" +
		"입력하신 아이디어와 충분히 관련된 선행 특허(prior art)를 찾지 못했습니다. " +
		"검색된 문헌 중 평가 대상이 된 후보가 없으므로, 현재 검색 범위 내에서는 " +
		"등록 가능성을 직접적으로 저해하는 선행 기술이 확인되지 않았습니다.\n\n" +
		SectionStrategicAdvice + "\n\n" +
		"- 핵심 구성 요소와 결합 방식을 더 구체적으로 기술하여 다시 검색해 보시기 바랍니다.\n" +
		"- 검색 결과가 없다는 것이 신규성을 보장하지는 않으므로, 출원 전 전문가 검토를 권장합니다.\n"
	return Report{Markdown: md, NoRelevantPriorArt: true}
}
