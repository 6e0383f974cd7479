package sanitize

import (
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	messagePolicyOnce sync.Once
	messagePolicy     *bluemonday.Policy
)

// Message cleans banner markup. Links and inline emphasis survive, anything
// else is stripped.
func Message(input string) string {
	value := strings.TrimSpace(input)
	if value == "" {
		return ""
	}
	return strings.TrimSpace(getMessagePolicy().Sanitize(value))
}

func MessagePtr(input *string) *string {
	if input == nil {
		return nil
	}
	value := Message(*input)
	return &value
}

func getMessagePolicy() *bluemonday.Policy {
	messagePolicyOnce.Do(func() {
		policy := bluemonday.NewPolicy()
		policy.AllowStandardURLs()
		policy.AllowAttrs("href").OnElements("a")
		policy.RequireNoFollowOnLinks(true)
		policy.AddTargetBlankToFullyQualifiedLinks(true)
		policy.AllowElements("b", "strong", "i", "em", "u", "br")
		messagePolicy = policy
	})

	return messagePolicy
}
