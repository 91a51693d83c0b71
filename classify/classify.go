package classify

// The classify package maps renderer diagnostics to a probable cause and a
// suggested solution using an ordered table of pattern rules.

import (
	"fmt"
	"os"
	"regexp"

	"github.com/perfgo/texforge/model"
	"gopkg.in/yaml.v3"
)

// AutoFixThreshold is the confidence above which a diagnosis is considered
// automatically fixable.
const AutoFixThreshold = 0.8

// Rule is a single entry of the classification table.
type Rule struct {
	Pattern    *regexp.Regexp
	Cause      string
	Solution   string
	Confidence float64
}

// Classifier evaluates rules in order; the first matching rule wins.
type Classifier struct {
	rules []Rule
}

// New creates a classifier with the built-in rules followed by extra rules.
func New(extra ...Rule) *Classifier {
	rules := make([]Rule, 0, len(builtinRules)+len(extra))
	rules = append(rules, builtinRules...)
	rules = append(rules, extra...)
	return &Classifier{rules: rules}
}

// Rules returns a copy of the rule table in evaluation order.
func (c *Classifier) Rules() []Rule {
	rules := make([]Rule, len(c.rules))
	copy(rules, c.rules)
	return rules
}

// Classify returns the diagnosis of the first rule matching text.
// It never fails: unmatched text yields an unrecognized diagnosis.
func (c *Classifier) Classify(text string) model.Diagnosis {
	for _, rule := range c.rules {
		if rule.Pattern.MatchString(text) {
			return model.Diagnosis{
				Recognized:  true,
				Cause:       rule.Cause,
				Solution:    rule.Solution,
				Confidence:  rule.Confidence,
				AutoFixable: rule.Confidence > AutoFixThreshold,
			}
		}
	}

	return model.Diagnosis{
		Recognized:  false,
		Cause:       "Unknown error pattern",
		Solution:    "Manual investigation required",
		Confidence:  0.0,
		AutoFixable: false,
	}
}

type ruleFile struct {
	Rules []struct {
		Pattern    string  `yaml:"pattern"`
		Cause      string  `yaml:"cause"`
		Solution   string  `yaml:"solution"`
		Confidence float64 `yaml:"confidence"`
	} `yaml:"rules"`
}

// LoadRules reads additional rules from a YAML file of the form:
//
//	rules:
//	  - pattern: "File `.*\\.cls' not found"
//	    cause: Missing document class
//	    solution: Install the class or change documentclass
//	    confidence: 0.9
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var rf ruleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}

	rules := make([]Rule, 0, len(rf.Rules))
	for i, r := range rf.Rules {
		if r.Pattern == "" {
			return nil, fmt.Errorf("rule %d: pattern is required", i+1)
		}
		if r.Confidence < 0 || r.Confidence > 1 {
			return nil, fmt.Errorf("rule %d: confidence %v out of range [0,1]", i+1, r.Confidence)
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %d: invalid pattern: %w", i+1, err)
		}
		rules = append(rules, Rule{
			Pattern:    re,
			Cause:      r.Cause,
			Solution:   r.Solution,
			Confidence: r.Confidence,
		})
	}
	return rules, nil
}
