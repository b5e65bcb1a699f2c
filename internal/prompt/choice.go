package prompt

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/ArgPipe/internal/models"
)

// DefaultChoiceRetryText is sent when a reply matches no single option.
const DefaultChoiceRetryText = "That matched none or several of the options. Reply with a number from the list, or `cancel`."

// ChoiceOption is one entry of a numbered choice list. Extra is a secondary
// key, such as an id, that selects the option when replied verbatim.
type ChoiceOption struct {
	Display string `json:"display"`
	Extra   string `json:"extra,omitempty"`
}

// ChoiceRequest describes a disambiguation prompt.
type ChoiceRequest struct {
	Key       Key
	Title     string
	Options   []ChoiceOption
	RetryText string
	Timeout   time.Duration
	Retries   int
}

// Choose asks the user to pick one option and returns its index. At most
// models.MaxChoices options are offered.
func (c *Collector) Choose(ctx context.Context, req ChoiceRequest) (int, error) {
	options := req.Options
	if len(options) == 0 {
		return -1, ErrNoChoices
	}
	if len(options) > models.MaxChoices {
		options = options[:models.MaxChoices]
	}
	retryText := req.RetryText
	if retryText == "" {
		retryText = DefaultChoiceRetryText
	}

	text := FormatChoices(req.Title, options)
	task, err := c.Start(ctx, Request{
		Key:       req.Key,
		Text:      text,
		RetryText: retryText,
		Timeout:   req.Timeout,
		Retries:   req.Retries,
		Validate: func(_ context.Context, content string) (any, bool, error) {
			idx, ok := MatchChoice(content, options)
			return idx, ok, nil
		},
	})
	if err != nil {
		return -1, err
	}

	v, err := task.Wait(ctx)
	if err != nil {
		return -1, err
	}
	idx := v.(int)

	if !c.opts.Cleanup {
		if ref, ok := task.Ref(); ok {
			picked := fmt.Sprintf("%s\n\nSelected: %s", text, options[idx].Display)
			if err := c.messenger.Edit(ctx, ref, picked); err != nil {
				slog.Warn("Collector.Choose failed to edit choice list", "key", req.Key.String(), "error", err)
			}
		}
	}
	slog.Debug("Collector.Choose picked option", "key", req.Key.String(), "index", idx)
	return idx, nil
}

// FormatChoices renders a numbered list under title.
func FormatChoices(title string, options []ChoiceOption) string {
	var sb strings.Builder
	if title != "" {
		sb.WriteString(title)
		sb.WriteString("\n")
	}
	for i, o := range options {
		fmt.Fprintf(&sb, "%d. %s", i+1, o.Display)
		if o.Extra != "" && o.Extra != o.Display {
			fmt.Fprintf(&sb, " (%s)", o.Extra)
		}
		if i < len(options)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// MatchChoice matches a reply against options. An exact extra key wins,
// then a list position, then a case-insensitive substring of the display
// text. Each rule must select exactly one option.
func MatchChoice(content string, options []ChoiceOption) (int, bool) {
	content = strings.TrimSpace(content)
	if content == "" {
		return -1, false
	}

	if idx, ok := single(options, func(o ChoiceOption) bool {
		return o.Extra != "" && strings.EqualFold(o.Extra, content)
	}); ok {
		return idx, true
	}

	if n, err := strconv.Atoi(content); err == nil && n >= 1 && n <= len(options) {
		return n - 1, true
	}

	needle := strings.ToLower(content)
	return single(options, func(o ChoiceOption) bool {
		return strings.Contains(strings.ToLower(o.Display), needle)
	})
}

func single(options []ChoiceOption, match func(ChoiceOption) bool) (int, bool) {
	found := -1
	for i, o := range options {
		if !match(o) {
			continue
		}
		if found >= 0 {
			return -1, false
		}
		found = i
	}
	return found, found >= 0
}
