// Package fulfill resolves a command schema against user input.
//
// A Fulfiller walks the schema tree over an InputSource, runs each slot's
// raw phrases through the resolver registry, asks the user to pick when a
// resolver returns several candidates, and re-prompts for required slots
// that could not be resolved. The result mirrors the schema: value slots map
// to their values and a matched subcommand maps to a nested result.
package fulfill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/ArgPipe/internal/models"
	"github.com/BTreeMap/ArgPipe/internal/parser"
	"github.com/BTreeMap/ArgPipe/internal/prompt"
	"github.com/BTreeMap/ArgPipe/internal/resolver"
)

// ErrAmbiguous is returned when several candidates need a choice but no
// collector is available to ask the user.
var ErrAmbiguous = errors.New("ambiguous input")

// DefaultChoiceText titles disambiguation lists. {name} is replaced with
// the slot name.
const DefaultChoiceText = "Several matches for {name}. Which one did you mean?"

// Opts holds Fulfiller configuration.
type Opts struct {
	Directory  resolver.Directory
	ChoiceText string
}

// Option configures a Fulfiller.
type Option func(*Opts)

// WithDirectory sets the live platform state passed to resolvers.
func WithDirectory(d resolver.Directory) Option {
	return func(o *Opts) {
		o.Directory = d
	}
}

// WithChoiceText sets the disambiguation title. {name} is replaced with the
// slot name.
func WithChoiceText(text string) Option {
	return func(o *Opts) {
		o.ChoiceText = text
	}
}

// Fulfiller resolves schemas. It is safe for concurrent use.
type Fulfiller struct {
	registry  *resolver.Registry
	collector *prompt.Collector
	opts      Opts
}

// New creates a Fulfiller. collector may be nil, in which case no prompts
// are shown and ambiguous or missing input fails immediately.
func New(registry *resolver.Registry, collector *prompt.Collector, opts ...Option) *Fulfiller {
	o := Opts{ChoiceText: DefaultChoiceText}
	for _, opt := range opts {
		opt(&o)
	}
	return &Fulfiller{registry: registry, collector: collector, opts: o}
}

// FulfillText parses content and resolves schema against it.
func (f *Fulfiller) FulfillText(ctx context.Context, inv models.Invocation, schema []models.Slot, content string) (map[string]any, error) {
	out, err := parser.ParseContent(content, AllowedOptions(schema))
	if err != nil {
		return nil, fmt.Errorf("failed to parse input: %w", err)
	}
	return f.Fulfill(ctx, inv, schema, NewTextSource(out))
}

// FulfillInteraction resolves schema against a structured payload.
func (f *Fulfiller) FulfillInteraction(ctx context.Context, it models.Interaction, schema []models.Slot) (map[string]any, error) {
	return f.Fulfill(ctx, it.Invocation(), schema, NewStructuredSource(it.Options))
}

// Fulfill resolves schema against src.
func (f *Fulfiller) Fulfill(ctx context.Context, inv models.Invocation, schema []models.Slot, src InputSource) (map[string]any, error) {
	rc := &resolver.Context{Invocation: inv, Directory: f.opts.Directory}
	result, err := f.fulfillSlots(ctx, rc, schema, src)
	if err != nil {
		slog.Debug("Fulfiller.Fulfill failed", "command", inv.Command, "source", src.Kind(), "error", err)
		return nil, err
	}
	slog.Debug("Fulfiller.Fulfill completed", "command", inv.Command, "source", src.Kind(), "slots", len(result))
	return result, nil
}

func (f *Fulfiller) fulfillSlots(ctx context.Context, rc *resolver.Context, slots []models.Slot, src InputSource) (map[string]any, error) {
	result := make(map[string]any)

	if len(slots) > 0 && slots[0].IsBranch() {
		child, sub, ok := src.Branch(slots)
		if !ok {
			return result, nil
		}
		nested, err := f.fulfillSlots(ctx, rc, child.Options, sub)
		if err != nil {
			return nil, err
		}
		result[child.Name] = nested
		return result, nil
	}

	for i := range slots {
		slot := &slots[i]
		value, ok, err := f.resolveSlot(ctx, rc, slot, src)
		if err != nil {
			return nil, err
		}
		if ok {
			result[slot.Name] = value
		}
	}
	return result, nil
}

func (f *Fulfiller) resolveSlot(ctx context.Context, rc *resolver.Context, slot *models.Slot, src InputSource) (any, bool, error) {
	if slot.MatchMode() == models.MatchFlag {
		return finalize(slot, src.Flag(slot)), true, nil
	}

	res, err := f.candidates(ctx, rc, slot, src.Phrases(slot))
	if err != nil {
		return nil, false, &models.ResolutionError{Slot: slot.Name, Cause: err}
	}
	value, ok, err := f.pick(ctx, rc, slot, res)
	if err != nil {
		return nil, false, &models.ResolutionError{Slot: slot.Name, Cause: err}
	}

	if !ok && slot.Required && slot.Prompt != nil && slot.Prompt.Start != "" && f.collector != nil {
		value, ok, err = f.collect(ctx, rc, slot)
		if err != nil {
			return nil, false, &models.ResolutionError{Slot: slot.Name, Cause: err}
		}
	}

	if !ok && slot.Default != nil {
		value, ok = slot.Default, true
	}
	if !ok {
		if slot.Required {
			return nil, false, &models.ResolutionError{Slot: slot.Name, Cause: models.ErrMissingArgument}
		}
		return nil, false, nil
	}
	return finalize(slot, value), true, nil
}

// candidates reduces raw phrases and resolves them through the slot's
// choices or its type's resolver.
func (f *Fulfiller) candidates(ctx context.Context, rc *resolver.Context, slot *models.Slot, raw []string) (*resolver.Result, error) {
	raw = f.registry.Reduce(rc, slot, raw)
	if len(raw) == 0 {
		return &resolver.Result{}, nil
	}
	if len(slot.Choices) > 0 {
		return matchChoices(slot, raw), nil
	}
	return f.registry.Resolve(ctx, rc, slot, raw)
}

// pick turns candidates into a value. Several reducing candidates are
// disambiguated, several plain candidates are returned as a list and a
// single candidate is unwrapped.
func (f *Fulfiller) pick(ctx context.Context, rc *resolver.Context, slot *models.Slot, res *resolver.Result) (any, bool, error) {
	if res.Empty() {
		return nil, false, nil
	}
	if len(res.Values) == 1 {
		return res.Values[0], true, nil
	}
	if !res.Reduce {
		return append([]any(nil), res.Values...), true, nil
	}

	v, err := f.disambiguate(ctx, rc, slot, res)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (f *Fulfiller) disambiguate(ctx context.Context, rc *resolver.Context, slot *models.Slot, res *resolver.Result) (any, error) {
	if f.collector == nil {
		return nil, ErrAmbiguous
	}
	values := res.Values
	if len(values) > models.MaxChoices {
		values = values[:models.MaxChoices]
	}
	options := make([]prompt.ChoiceOption, 0, len(values))
	for _, v := range values {
		options = append(options, prompt.ChoiceOption{Display: res.DisplayOf(v), Extra: res.ExtraOf(v)})
	}

	timeout, retries := slot.Prompt.Limits()
	idx, err := f.collector.Choose(ctx, prompt.ChoiceRequest{
		Key:     prompt.KeyFor(rc.Invocation),
		Title:   strings.ReplaceAll(f.opts.ChoiceText, "{name}", slot.Name),
		Options: options,
		Timeout: timeout,
		Retries: retries,
	})
	if err != nil {
		return nil, err
	}
	slog.Debug("Fulfiller disambiguated slot", "slot", slot.Name, "index", idx, "candidates", len(values))
	return values[idx], nil
}

// collect asks the user for the slot and runs each reply through the same
// reduce and resolve pipeline as the original input.
func (f *Fulfiller) collect(ctx context.Context, rc *resolver.Context, slot *models.Slot) (any, bool, error) {
	spec := slot.Prompt
	timeout, retries := spec.Limits()
	v, err := f.collector.Collect(ctx, prompt.Request{
		Key:       prompt.KeyFor(rc.Invocation),
		Text:      spec.Start,
		RetryText: spec.Retry,
		Timeout:   timeout,
		Retries:   retries,
		Infinite:  spec.Infinite,
		Limit:     spec.Limit,
		Validate: func(ctx context.Context, content string) (any, bool, error) {
			res, err := f.candidates(ctx, rc, slot, replyPhrases(slot, content))
			if err != nil {
				return nil, false, err
			}
			return res, !res.Empty(), nil
		},
	})
	if err != nil {
		return nil, false, err
	}

	if !spec.Infinite {
		return f.pick(ctx, rc, slot, v.(*resolver.Result))
	}

	var values []any
	for _, item := range v.([]any) {
		value, ok, err := f.pick(ctx, rc, slot, item.(*resolver.Result))
		if err != nil {
			return nil, false, err
		}
		if ok {
			values = append(values, value)
		}
	}
	if len(values) == 0 {
		return nil, false, nil
	}
	return values, true, nil
}

// replyPhrases reads a prompt reply as a single phrase, or as one phrase
// per word for list slots without separators.
func replyPhrases(slot *models.Slot, content string) []string {
	out, err := parser.ParseContent(content, nil)
	if err != nil {
		return nil
	}
	phrases := out.PhraseValues()
	if len(phrases) == 0 {
		return nil
	}
	if slot.Array && len(slot.Separators) == 0 {
		return phrases
	}
	return []string{strings.Join(phrases, " ")}
}

func matchChoices(slot *models.Slot, raw []string) *resolver.Result {
	res := &resolver.Result{}
	for _, p := range raw {
		choice, ok := findChoice(slot.Choices, p)
		if !ok {
			return &resolver.Result{}
		}
		res.Values = append(res.Values, choiceValue(choice))
	}
	return res
}

func findChoice(choices []models.Choice, phrase string) (models.Choice, bool) {
	phrase = strings.TrimSpace(phrase)
	for _, c := range choices {
		if strings.EqualFold(c.Name, phrase) {
			return c, true
		}
	}
	for _, c := range choices {
		if c.Value != nil && strings.EqualFold(fmt.Sprint(c.Value), phrase) {
			return c, true
		}
	}
	return models.Choice{}, false
}

func choiceValue(c models.Choice) any {
	if c.Value != nil {
		return c.Value
	}
	return c.Name
}

// finalize applies list wrapping and the slot's transform.
func finalize(slot *models.Slot, value any) any {
	if slot.Array {
		if _, ok := value.([]any); !ok {
			value = []any{value}
		}
	}
	if slot.Transform != nil {
		value = slot.Transform(value)
	}
	return value
}

// AllowedOptions collects the option keys declared anywhere in schema.
// Boolean options take no value. Flag slots are also accepted in long form
// (--name) under their name and aliases.
func AllowedOptions(schema []models.Slot) []parser.OptionSpec {
	var specs []parser.OptionSpec
	var walk func([]models.Slot)
	walk = func(slots []models.Slot) {
		for i := range slots {
			s := &slots[i]
			if s.IsBranch() {
				walk(s.Options)
				continue
			}
			switch s.MatchMode() {
			case models.MatchFlag:
				for _, key := range longFlagKeys(s) {
					specs = append(specs, parser.OptionSpec{Name: key})
				}
				continue
			case models.MatchOption:
			default:
				continue
			}
			for _, key := range s.OptionKeys() {
				specs = append(specs, parser.OptionSpec{Name: key, TakesValue: s.SlotType() != models.TypeBoolean})
			}
		}
	}
	walk(schema)
	return specs
}
