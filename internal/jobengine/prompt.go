package jobengine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/agentctx/platform/internal/entity"
	"github.com/agentctx/platform/internal/tokencount"
)

const (
	maxEntityDescription = 500
	maxEntityTags        = 10
	maxEntityPersona     = 300
	maxNarrativeSummary  = 800
)

// promptInputs bundles everything composePrompt needs to deterministically
// render the execution prompt. No LLM
// call is involved in building it.
type promptInputs struct {
	job           *entity.Job
	instance      *entity.ModuleInstance
	executingAs   *entity.User
	relatedEntity *entity.SocialEntity
	narrative     *entity.Narrative
	dependencies  []dependencyResult
}

type dependencyResult struct {
	Title          string
	InstanceStatus entity.InstanceStatus
	FinalOutput    string
}

// composePrompt renders the deterministic job execution prompt.
// Sections are omitted entirely when their inputs are absent. tokens is
// optional; nil falls back to a byte-length truncation.
func composePrompt(in promptInputs, now time.Time, tokens *tokencount.Counter) string {
	var b strings.Builder

	loc := time.UTC
	if in.executingAs != nil {
		loc = in.executingAs.Location()
	}

	fmt.Fprintf(&b, "[Task information]\n")
	fmt.Fprintf(&b, "title: %s\n", in.job.Title)
	fmt.Fprintf(&b, "description: %s\n", in.job.Description)
	fmt.Fprintf(&b, "created: %s\n", in.job.CreatedAt.In(loc).Format(time.RFC1123))
	fmt.Fprintf(&b, "now: %s\n", now.In(loc).Format(time.RFC1123))
	fmt.Fprintf(&b, "executing as: %s\n\n", in.job.EffectiveUserID())

	if in.relatedEntity != nil {
		fmt.Fprintf(&b, "[Related entities]\n")
		fmt.Fprintf(&b, "Name: %s\n", in.relatedEntity.EntityName)
		fmt.Fprintf(&b, "Type: %s\n", in.relatedEntity.EntityType)
		fmt.Fprintf(&b, "Description: %s\n", truncateTokens(in.relatedEntity.EntityDescription, maxEntityDescription, tokens))
		fmt.Fprintf(&b, "Tags: %s\n", strings.Join(truncateSlice(in.relatedEntity.Tags, maxEntityTags), ", "))
		fmt.Fprintf(&b, "Persona: %s\n\n", truncateTokens(in.relatedEntity.Persona, maxEntityPersona, tokens))
	}

	if in.narrative != nil {
		fmt.Fprintf(&b, "[Current progress]\n")
		fmt.Fprintf(&b, "%s\n\n", truncateTokens(in.narrative.NarrativeInfo.CurrentSummary, maxNarrativeSummary, tokens))
	}

	if len(in.dependencies) > 0 {
		fmt.Fprintf(&b, "[Prerequisite task results]\n")
		for _, dep := range in.dependencies {
			fmt.Fprintf(&b, "- %s (%s): %s\n", dep.Title, dep.InstanceStatus, dep.FinalOutput)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "[Execution instruction]\n%s\n\n", in.job.Payload)

	if len(in.dependencies) > 0 {
		b.WriteString("[Context footer]\nRespect the prerequisite task results above; do not contradict or redo completed upstream work.\n")
	}

	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// truncateTokens prefers a token-aware cut (what actually counts against
// the model's context window) and falls back to the byte-length cut when
// no Counter is configured.
func truncateTokens(s string, n int, tokens *tokencount.Counter) string {
	if tokens == nil {
		return truncate(s, n)
	}
	return tokens.TruncateToTokens(s, n)
}

func truncateSlice(ss []string, n int) []string {
	if len(ss) <= n {
		return ss
	}
	return ss[:n]
}

// composerDeps is the set of repos gather needs to collect
// promptInputs, kept small and explicit rather than threading a god
// object through the engine.
type composerDeps struct {
	users      *entity.UserRepo
	social     *entity.SocialRepo
	narratives *entity.NarrativeRepo
	instances  *entity.InstanceRepo
	events     *entity.EventRepo
}

func (c *composerDeps) gather(ctx context.Context, job *entity.Job, instance *entity.ModuleInstance) (promptInputs, error) {
	in := promptInputs{job: job, instance: instance}

	if u, err := c.users.Get(ctx, job.EffectiveUserID()); err == nil {
		in.executingAs = u
	}

	if job.RelatedEntityID != "" {
		if socialInstanceID, err := c.socialNetworkInstanceID(ctx, instance.AgentID); err == nil && socialInstanceID != "" {
			entities, err := c.social.ForInstance(ctx, socialInstanceID)
			if err == nil {
				for _, e := range entities {
					if e.EntityID == job.RelatedEntityID || e.EntityName == job.RelatedEntityID {
						in.relatedEntity = e
						break
					}
				}
			}
		}
	}

	if job.NarrativeID != "" {
		if n, err := c.narratives.Get(ctx, job.NarrativeID); err == nil {
			in.narrative = n
		}
	}

	for _, depID := range instance.Dependencies {
		dep, err := c.instances.Get(ctx, depID)
		if err != nil {
			continue
		}
		var finalOutput string
		if ev, err := c.events.LatestForInstance(ctx, depID); err == nil && ev != nil {
			finalOutput = ev.FinalOutput
		}
		in.dependencies = append(in.dependencies, dependencyResult{
			Title:          dep.Description,
			InstanceStatus: dep.Status,
			FinalOutput:    finalOutput,
		})
	}

	return in, nil
}

// socialNetworkInstanceID resolves the agent's one public
// SocialNetworkModule instance, the scope SocialEntity rows live under.
func (c *composerDeps) socialNetworkInstanceID(ctx context.Context, agentID string) (string, error) {
	public, err := c.instances.PublicForAgent(ctx, agentID)
	if err != nil {
		return "", err
	}
	for _, inst := range public {
		if inst.ModuleClass == entity.ModuleSocialNetwork {
			return inst.InstanceID, nil
		}
	}
	return "", nil
}
