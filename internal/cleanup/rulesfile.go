package cleanup

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// RuleSet is the on-disk form of the keyword lists that drive the context rules.
//
//	protected_terms: [fintech, "financial services"]
//	survey_terms: [poll]
//	compound_terms: ["Horizon 2020"]
//	replace: false
type RuleSet struct {
	ProtectedTerms []string `yaml:"protected_terms"`
	SurveyTerms    []string `yaml:"survey_terms"`
	CompoundTerms  []string `yaml:"compound_terms"`
	// Replace discards the configured lists instead of extending them.
	Replace bool `yaml:"replace"`
}

// LoadRuleSet reads a RuleSet from a YAML file.
func LoadRuleSet(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "cleanup: read rules file %s", path)
	}
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, eris.Wrapf(err, "cleanup: parse rules file %s", path)
	}
	return &rs, nil
}

// merge folds the rule set into opts.
func (rs *RuleSet) merge(opts Options) Options {
	if rs.Replace {
		opts.ProtectedTerms = nil
		opts.SurveyTerms = nil
		opts.CompoundTerms = nil
	}
	opts.ProtectedTerms = append(append([]string(nil), opts.ProtectedTerms...), rs.ProtectedTerms...)
	opts.SurveyTerms = append(append([]string(nil), opts.SurveyTerms...), rs.SurveyTerms...)
	opts.CompoundTerms = append(append([]string(nil), opts.CompoundTerms...), rs.CompoundTerms...)
	return opts
}
