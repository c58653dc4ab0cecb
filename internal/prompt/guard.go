package prompt

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrPromptInjection is returned when a question tries to steer the model
var ErrPromptInjection = errors.New("potential prompt injection detected")

// InjectionType groups injection patterns
type InjectionType string

const (
	InjectionTypeInstructionOverride InjectionType = "instruction_override"
	InjectionTypeSystemPromptLeak    InjectionType = "system_prompt_leak"
	InjectionTypeDelimiterAttack     InjectionType = "delimiter_attack"
)

var injectionPatterns = map[InjectionType][]*regexp.Regexp{
	InjectionTypeInstructionOverride: {
		regexp.MustCompile(`(?i)(ignore|disregard|forget)\s+(all\s+)?(previous|prior|above|earlier)\s+(instructions?|prompts?|rules)`),
		regexp.MustCompile(`(?i)override\s+(all|previous|system)\s+(instructions?|rules|settings?)`),
		regexp.MustCompile(`(?i)from\s+now\s+on,?\s+you\s+(are|will)`),
	},
	InjectionTypeSystemPromptLeak: {
		regexp.MustCompile(`(?i)(show|reveal|print|repeat)\s+(me\s+)?(your|the)\s+(system|original|hidden)\s+(prompt|instructions?)`),
		regexp.MustCompile(`(?i)what\s+(is|are)\s+your\s+(system|original)\s+(prompt|instructions?)`),
	},
	InjectionTypeDelimiterAttack: {
		regexp.MustCompile(`\[/?(SYSTEM|USER|ASSISTANT)\]`),
		regexp.MustCompile(`<\|(system|user|assistant|end)\|>`),
		regexp.MustCompile(`###\s*(SYSTEM|INSTRUCTION)`),
	},
}

// injectionOrder keeps the reported type deterministic
var injectionOrder = []InjectionType{
	InjectionTypeInstructionOverride,
	InjectionTypeSystemPromptLeak,
	InjectionTypeDelimiterAttack,
}

// DetectInjection returns the first injection type found in text
func DetectInjection(text string) (InjectionType, bool) {
	for _, t := range injectionOrder {
		for _, p := range injectionPatterns[t] {
			if p.MatchString(text) {
				return t, true
			}
		}
	}
	return "", false
}

// Guard returns an error wrapping ErrPromptInjection when text looks like an injection attempt
func Guard(text string) error {
	if t, found := DetectInjection(text); found {
		return fmt.Errorf("%w: %s", ErrPromptInjection, t)
	}
	return nil
}
