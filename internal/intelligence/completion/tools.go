package completion

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/turtacn/KeyIP-PriorArt/pkg/errors"
)

// ToolName identifies one of the tools the pipeline can offer.
type ToolName string

const (
	// ToolSearchQuery carries the router's retrieval sentence.
	ToolSearchQuery ToolName = "search_query"
	// ToolEvalScore carries the judge's similarity verdict.
	ToolEvalScore ToolName = "cal_evalscore"
)

// ErrUnknownTool is returned by Decode for a tool name outside the closed set.
var ErrUnknownTool = errors.New(errors.ErrCodeUnknownTool, "unknown tool")

// ToolSpec is the provider-neutral definition of a tool.
type ToolSpec struct {
	Name        ToolName
	Description string
	// Properties and Required form the JSON schema of the arguments object.
	Properties map[string]interface{}
	Required   []string
}

// Schema returns the full JSON schema of the arguments object.
func (s ToolSpec) Schema() map[string]interface{} {
	required := make([]interface{}, len(s.Required))
	for i, r := range s.Required {
		required[i] = r
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": s.Properties,
		"required":   required,
	}
}

var toolSpecs = map[ToolName]ToolSpec{
	ToolSearchQuery: {
		Name: ToolSearchQuery,
		Description: "사용자의 아이디어가 검색 가능한 수준으로 구체적일 때 호출합니다. " +
			"특허 벡터 검색에 사용할 구조적 기술 문장을 전달합니다.",
		Properties: map[string]interface{}{
			"query_text": map[string]interface{}{
				"type":        "string",
				"minLength":   1,
				"description": "대상 + 구성/결합 방식 + 목적을 담은 한 문장의 기술 설명. 키워드 나열 금지.",
			},
		},
		Required: []string{"query_text"},
	},
	ToolEvalScore: {
		Name:        ToolEvalScore,
		Description: "아이디어와 선행 특허의 기술적 유사도 평가 결과를 기록합니다.",
		Properties: map[string]interface{}{
			"eval_score": map[string]interface{}{
				"type":        "integer",
				"minimum":     0,
				"maximum":     100,
				"description": "0~100 사이의 정수 유사도 점수.",
			},
			"reason": map[string]interface{}{
				"type":        "string",
				"minLength":   1,
				"description": "일치하는 기술 요소를 먼저, 차별화되는 구성 요소를 나중에 서술한 평가 근거.",
			},
		},
		Required: []string{"eval_score", "reason"},
	},
}

// Spec returns the definition of name.
func Spec(name ToolName) (ToolSpec, bool) {
	s, ok := toolSpecs[name]
	return s, ok
}

// Invocation is a decoded, validated tool call. The set of implementations
// is closed: SearchQueryCall and EvalScoreCall.
type Invocation interface {
	Tool() ToolName
	isInvocation()
}

// SearchQueryCall is a decoded search_query invocation.
type SearchQueryCall struct {
	QueryText string
}

func (SearchQueryCall) Tool() ToolName { return ToolSearchQuery }
func (SearchQueryCall) isInvocation()  {}

// EvalScoreCall is a decoded cal_evalscore invocation.
type EvalScoreCall struct {
	EvalScore int
	Reason    string
}

func (EvalScoreCall) Tool() ToolName { return ToolEvalScore }
func (EvalScoreCall) isInvocation()  {}

// Decode validates call.Arguments against the tool's schema and converts it
// into its Invocation. Unknown tool names yield ErrUnknownTool; schema or
// decoding failures yield an ErrCodeToolArguments error.
func Decode(call ToolCall) (Invocation, error) {
	name := ToolName(call.Name)
	spec, ok := toolSpecs[name]
	if !ok {
		return nil, ErrUnknownTool.WithDetailf("name=%q", call.Name)
	}
	if err := validateArguments(spec, call.Arguments); err != nil {
		return nil, err
	}

	switch name {
	case ToolSearchQuery:
		var args struct {
			QueryText string `json:"query_text"`
		}
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeToolArguments, "decode search_query arguments")
		}
		q := strings.TrimSpace(args.QueryText)
		if q == "" {
			return nil, errors.New(errors.ErrCodeToolArguments, "search_query.query_text is empty")
		}
		return SearchQueryCall{QueryText: q}, nil

	case ToolEvalScore:
		var args struct {
			EvalScore json.Number `json:"eval_score"`
			Reason    string      `json:"reason"`
		}
		dec := json.NewDecoder(bytes.NewReader(call.Arguments))
		dec.UseNumber()
		if err := dec.Decode(&args); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeToolArguments, "decode cal_evalscore arguments")
		}
		score, err := integerScore(args.EvalScore)
		if err != nil {
			return nil, err
		}
		reason := strings.TrimSpace(args.Reason)
		if reason == "" {
			return nil, errors.New(errors.ErrCodeToolArguments, "cal_evalscore.reason is empty")
		}
		return EvalScoreCall{EvalScore: score, Reason: reason}, nil
	}

	return nil, ErrUnknownTool.WithDetailf("name=%q", call.Name)
}

// integerScore accepts integral JSON numbers, including forms like 85.0.
func integerScore(n json.Number) (int, error) {
	f, err := n.Float64()
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeToolArguments, "cal_evalscore.eval_score is not a number")
	}
	if f != float64(int(f)) {
		return 0, errors.Newf(errors.ErrCodeToolArguments, "cal_evalscore.eval_score %s is not an integer", n)
	}
	score := int(f)
	if score < 0 || score > 100 {
		return 0, errors.Newf(errors.ErrCodeToolArguments, "cal_evalscore.eval_score %d is out of range [0, 100]", score)
	}
	return score, nil
}

func validateArguments(spec ToolSpec, args []byte) error {
	if len(bytes.TrimSpace(args)) == 0 {
		return errors.Newf(errors.ErrCodeToolArguments, "%s arguments are empty", spec.Name)
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(spec.Schema()),
		gojsonschema.NewBytesLoader(args),
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeToolArguments, fmt.Sprintf("%s arguments are not valid JSON", spec.Name))
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return errors.Newf(errors.ErrCodeToolArguments, "%s arguments failed schema validation", spec.Name).
			WithDetail(strings.Join(msgs, "; "))
	}
	return nil
}
