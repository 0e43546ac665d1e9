package bridge

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/techidiots/webaibridge/internal/chip"
	"github.com/techidiots/webaibridge/internal/errors"
	"github.com/techidiots/webaibridge/internal/policy"
	"github.com/techidiots/webaibridge/internal/protocol"
	"github.com/techidiots/webaibridge/internal/token"
)

// ContextSender issues correlated context requests; *Conn implements it.
type ContextSender interface {
	Send(msg *protocol.Message, timeout time.Duration) (*protocol.Message, error)
}

// DefaultStageTimeout bounds one context fetch.
const DefaultStageTimeout = 10 * time.Second

// ClientOptions configures a Client.
type ClientOptions struct {
	// Mode, Model and CustomLimit feed the limit policy applied to every
	// fetched context. Zero values take warn mode and the default model.
	Mode        policy.Mode
	Model       string
	CustomLimit int

	// RequestTimeout bounds each fetch; 0 takes DefaultStageTimeout.
	RequestTimeout time.Duration

	Estimator *token.Estimator
	Logger    *slog.Logger
}

// Client composes the browser side of the bridge over one connection and
// one text buffer: context fetched from the host passes through the limit
// policy, and accepted content is staged as placeholder chips in the
// buffer until Expand produces the final text.
type Client struct {
	sender   ContextSender
	registry *chip.Registry
	opts     ClientOptions
}

// NewClient creates a Client staging into a registry bound to buffer.
func NewClient(sender ContextSender, buffer chip.TextBuffer, opts ClientOptions) *Client {
	if opts.Mode == "" {
		opts.Mode = policy.ModeWarn
	}
	if opts.Model == "" {
		opts.Model = token.DefaultModel
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultStageTimeout
	}
	if opts.Estimator == nil {
		opts.Estimator = token.NewEstimator(token.FamilyBPE)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		sender:   sender,
		registry: chip.NewRegistry(buffer, opts.Estimator, opts.Logger),
		opts:     opts,
	}
}

// StageResult reports how one fetched context was staged.
type StageResult struct {
	// Decision is the limit-policy outcome the staging followed.
	Decision policy.Decision

	// ChipIDs are the registered chips, one per staged part.
	ChipIDs []string
}

// StageContext fetches one context type from the host, runs the content
// through the limit policy, and registers what the policy accepts in the
// registry. Warn-mode content over the limit is still staged; the caller
// reads the warning off the returned decision. Chunked content becomes
// one chip per part, the first replacing the trigger span and the rest
// appended in order.
func (c *Client) StageContext(contextType, filePath, triggerSpan string) (*StageResult, error) {
	resp, err := c.sender.Send(&protocol.Message{
		Type:        protocol.TypeGetContext,
		ContextType: contextType,
		FilePath:    filePath,
	}, c.opts.RequestTimeout)
	if err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, errors.NewInvalidRequest(resp.Error)
	}

	decision := policy.Apply(resp.Text, c.opts.CustomLimit, c.opts.Mode, c.opts.Model, c.opts.Estimator)
	result := &StageResult{Decision: decision}

	kind := kindForContext(contextType)
	label := stageLabel(contextType, filePath)

	switch decision.Action {
	case policy.ActionChunk:
		for _, part := range decision.Chunks {
			content := part.Text
			id, err := c.registry.Insert(chip.InsertOptions{
				Kind:        kind,
				Label:       fmt.Sprintf("%s-part-%d", label, part.PartNumber),
				Content:     &content,
				Tokens:      part.Tokens,
				TriggerSpan: triggerSpan,
				FilePath:    filePath,
			})
			if err != nil {
				return nil, err
			}
			result.ChipIDs = append(result.ChipIDs, id)
			triggerSpan = ""
		}

	default:
		if decision.Action == policy.ActionWarn {
			c.opts.Logger.Warn("staged content exceeds the token limit",
				"contextType", contextType, "tokens", decision.Tokens, "limit", decision.Limit)
		}
		content := decision.Text
		id, err := c.registry.Insert(chip.InsertOptions{
			Kind:        kind,
			Label:       label,
			Content:     &content,
			Tokens:      decision.Tokens,
			TriggerSpan: triggerSpan,
			FilePath:    filePath,
		})
		if err != nil {
			return nil, err
		}
		result.ChipIDs = append(result.ChipIDs, id)
	}

	return result, nil
}

// Registry exposes the chip registry bound to the buffer.
func (c *Client) Registry() *chip.Registry {
	return c.registry
}

// Expand replaces every staged placeholder with its content and clears
// the staging state; the returned text is what leaves the system.
func (c *Client) Expand() string {
	return c.registry.Expand()
}

// kindForContext maps a wire contextType to the chip kind it stages as.
func kindForContext(contextType string) chip.Kind {
	switch contextType {
	case "selection":
		return chip.KindSelection
	case "file":
		return chip.KindFile
	case "file-tree":
		return chip.KindFileTree
	case "problems":
		return chip.KindProblems
	case "diff":
		return chip.KindDiff
	case "terminal":
		return chip.KindTerminal
	default:
		return chip.KindMention
	}
}

func stageLabel(contextType, filePath string) string {
	if filePath != "" {
		return chip.BaseName(filePath)
	}
	return contextType
}
