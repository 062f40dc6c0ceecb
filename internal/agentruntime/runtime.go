package agentruntime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/agentctx/platform/internal/decider"
	"github.com/agentctx/platform/internal/entity"
	"github.com/agentctx/platform/internal/jobengine"
	"github.com/agentctx/platform/internal/llm"
	"github.com/agentctx/platform/internal/moduleservice"
	"golang.org/x/sync/errgroup"
)

// Runtime implements AgentRuntime and jobengine.AgentRunner,
// so JobEngine drives job-triggered turns through the same orchestration
// chat-triggered turns use.
type Runtime struct {
	narratives *entity.NarrativeRepo
	events     *entity.EventRepo
	instances  *entity.InstanceRepo
	modules    *moduleservice.Service
	client     *llm.Client
	dispatcher ToolDispatcher
	hooks      map[entity.ModuleClass]Hook
	log        *slog.Logger
}

func New(narratives *entity.NarrativeRepo, events *entity.EventRepo, instances *entity.InstanceRepo, modules *moduleservice.Service, client *llm.Client, dispatcher ToolDispatcher, chatHook *ChatHook, jobHook *JobHook, log *slog.Logger) *Runtime {
	return &Runtime{
		narratives: narratives,
		events:     events,
		instances:  instances,
		modules:    modules,
		client:     client,
		dispatcher: dispatcher,
		hooks: map[entity.ModuleClass]Hook{
			entity.ModuleChat: chatHook,
			entity.ModuleJob:  jobHook,
		},
		log: log,
	}
}

// TurnInput is the entry parameters of one agent turn.
type TurnInput struct {
	AgentID           string
	UserID            string
	InputContent      string
	WorkingSource     entity.WorkingSource
	ForcedNarrativeID string
}

// Run adapts RunTurn to jobengine.AgentRunner, for job-triggered turns.
func (rt *Runtime) Run(ctx context.Context, req jobengine.RunRequest) (*jobengine.RunResult, error) {
	events := make(chan TurnEvent, 16)
	done := make(chan struct{})
	var result *jobengine.RunResult
	var runErr error

	go func() {
		defer close(done)
		var log []entity.EventLogEntry
		var final string
		for ev := range events {
			log = append(log, toEventLogEntry(ev))
			if ev.Kind == TurnAgentResponse {
				final += ev.Text
			}
		}
		result = &jobengine.RunResult{FinalOutput: final, EventLog: log}
	}()

	runErr = rt.RunTurn(ctx, TurnInput{
		AgentID:           req.AgentID,
		UserID:            req.EffectiveUserID,
		InputContent:      req.Prompt,
		WorkingSource:     req.WorkingSource,
		ForcedNarrativeID: req.ForcedNarrativeID,
	}, events)
	<-done
	if runErr != nil {
		return nil, runErr
	}
	return result, nil
}

func toEventLogEntry(ev TurnEvent) entity.EventLogEntry {
	e := entity.EventLogEntry{Timestamp: time.Now().UTC()}
	switch ev.Kind {
	case TurnToolCall:
		e.Kind = entity.EventLogToolCall
		e.ToolName = ev.ToolName
		e.Output = ev.Output
	case TurnAgentThinking:
		e.Kind = entity.EventLogThinking
		e.Text = ev.Text
	case TurnProgress:
		e.Kind = entity.EventLogProgress
		e.Text = ev.Text
	case TurnAgentResponse:
		e.Kind = entity.EventLogDelta
		e.Text = ev.Text
	case TurnError:
		e.Kind = entity.EventLogError
		if ev.Err != nil {
			e.Error = ev.Err.Error()
		}
	default:
		e.Kind = entity.EventLogComplete
		e.Text = ev.Text
	}
	return e
}

// RunTurn drives the full turn orchestration — resolve narrative, load
// modules, gather context, execute, persist the event, run after-hooks —
// streaming TurnEvents to out. out is closed by RunTurn before it
// returns.
func (rt *Runtime) RunTurn(ctx context.Context, in TurnInput, out chan<- TurnEvent) error {
	defer close(out)

	narrative, err := rt.resolveNarrative(ctx, in)
	if err != nil {
		out <- TurnEvent{Kind: TurnError, Err: err}
		return err
	}

	load, err := rt.modules.LoadModules(ctx, moduleservice.Input{
		AgentID:      in.AgentID,
		UserID:       in.UserID,
		NarrativeID:  narrative.NarrativeID,
		InputContent: in.InputContent,
	})
	if err != nil {
		out <- TurnEvent{Kind: TurnError, Err: err}
		return err
	}
	out <- TurnEvent{Kind: TurnProgress, Text: "modules loaded"}

	ctxData, err := rt.gatherContext(ctx, in, load.ActiveInstances)
	if err != nil {
		out <- TurnEvent{Kind: TurnError, Err: err}
		return err
	}

	finalOutput, err := rt.execute(ctx, in, load, ctxData, out)
	if err != nil {
		out <- TurnEvent{Kind: TurnError, Err: err}
		return err
	}

	event, err := rt.events.Create(ctx, &entity.Event{
		NarrativeID:   narrative.NarrativeID,
		AgentID:       in.AgentID,
		UserID:        in.UserID,
		Trigger:       in.InputContent,
		TriggerSource: string(in.WorkingSource),
		FinalOutput:   finalOutput,
	})
	if err != nil {
		out <- TurnEvent{Kind: TurnError, Err: err}
		return err
	}

	rt.runAfterHooks(ctx, in, load.ActiveInstances, ctxData, finalOutput, event.EventID)

	out <- TurnEvent{Kind: TurnComplete, Text: finalOutput}
	return nil
}

// resolveNarrative loads the forced narrative when one is set (job
// turns), else locates or creates the narrative whose actors match the
// (agent, user) pair.
func (rt *Runtime) resolveNarrative(ctx context.Context, in TurnInput) (*entity.Narrative, error) {
	if in.ForcedNarrativeID != "" {
		return rt.narratives.Get(ctx, in.ForcedNarrativeID)
	}
	n, err := rt.narratives.FindByActors(ctx, in.AgentID, in.UserID)
	if err != nil {
		return nil, err
	}
	if n != nil {
		return n, nil
	}
	return rt.narratives.Create(ctx, &entity.Narrative{
		AgentID: in.AgentID,
		NarrativeInfo: entity.NarrativeInfo{
			Actors: []entity.Actor{{ID: in.AgentID, Type: entity.ActorAgent}, {ID: in.UserID, Type: entity.ActorUser}},
		},
	})
}

// gatherContext fans DataGathering out over a deep-copied ContextData
// per module class, then merges the copies back into one. A hook that
// fails is logged and skipped; its copy contributes nothing and the
// turn continues.
func (rt *Runtime) gatherContext(ctx context.Context, in TurnInput, instances []*entity.ModuleInstance) (*ContextData, error) {
	base := newContextData(in.AgentID, in.UserID, in.InputContent)

	classes := distinctClasses(instances)
	copies := make([]*ContextData, len(classes))
	failed := make([]bool, len(classes))
	var g errgroup.Group
	for i, class := range classes {
		i, class := i, class
		copies[i] = base.clone()
		hook, ok := rt.hooks[class]
		if !ok {
			continue
		}
		g.Go(func() error {
			if err := hook.DataGathering(ctx, copies[i], instances); err != nil {
				rt.log.Warn("agentruntime: data-gathering hook failed, skipping", "module_class", string(class), "error", err)
				failed[i] = true
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, c := range copies {
		if failed[i] {
			continue
		}
		mergeInto(base, c)
	}
	return base, nil
}

func distinctClasses(instances []*entity.ModuleInstance) []entity.ModuleClass {
	seen := make(map[entity.ModuleClass]bool)
	var out []entity.ModuleClass
	for _, inst := range instances {
		if !seen[inst.ModuleClass] {
			seen[inst.ModuleClass] = true
			out = append(out, inst.ModuleClass)
		}
	}
	return out
}

// mergeInto collapses one module's ContextData copy into dst: list
// fields append new elements, dict fields deep-merge with per-key
// scalar override.
func mergeInto(dst, src *ContextData) {
	existing := make(map[string]bool, len(dst.ChatHistory))
	for _, m := range dst.ChatHistory {
		existing[m.InstanceID+"|"+m.Role+"|"+m.Content] = true
	}
	for _, m := range src.ChatHistory {
		key := m.InstanceID + "|" + m.Role + "|" + m.Content
		if !existing[key] {
			dst.ChatHistory = append(dst.ChatHistory, m)
			existing[key] = true
		}
	}
	mergeMap(dst.JobsInformation, src.JobsInformation)
	mergeMap(dst.UserProfile, src.UserProfile)
	mergeMap(dst.ExtraData, src.ExtraData)
}

func mergeMap(dst, src map[string]any) {
	for k, v := range src {
		if existing, ok := dst[k]; ok {
			if existingMap, ok1 := existing.(map[string]any); ok1 {
				if newMap, ok2 := v.(map[string]any); ok2 {
					mergeMap(existingMap, newMap)
					continue
				}
			}
		}
		dst[k] = v
	}
}

// execute picks the direct-trigger fast path or the streaming agent
// loop, per the decider's routing decision.
func (rt *Runtime) execute(ctx context.Context, in TurnInput, load *moduleservice.LoadResult, ctxData *ContextData, out chan<- TurnEvent) (string, error) {
	if load.ExecutionType == decider.ExecutionDirectTrigger && load.DirectTrigger != nil {
		return rt.runDirectTrigger(ctx, in, load.DirectTrigger, out)
	}
	return rt.runAgentLoop(ctx, in, ctxData, out)
}

func (rt *Runtime) runDirectTrigger(ctx context.Context, in TurnInput, trig *decider.DirectTrigger, out chan<- TurnEvent) (string, error) {
	result, err := rt.dispatcher.Dispatch(ctx, in.AgentID, llm.ToolCall{Name: trig.ToolName, Arguments: trig.Arguments})
	if err != nil {
		return "", err
	}
	out <- TurnEvent{Kind: TurnToolCall, ToolName: trig.ToolName, Output: result}
	out <- TurnEvent{Kind: TurnAgentResponse, Text: result}
	return result, nil
}

const maxAgentLoopIterations = 12

// runAgentLoop streams from the LLM, dispatching tool calls to the
// ToolDispatcher until the model stops requesting tools or the iteration
// cap is hit.
func (rt *Runtime) runAgentLoop(ctx context.Context, in TurnInput, ctxData *ContextData, out chan<- TurnEvent) (string, error) {
	tools, err := rt.dispatcher.Tools(ctx, in.AgentID)
	if err != nil {
		return "", err
	}

	messages := []llm.Message{{Role: "user", Content: composePrompt(in, ctxData)}}
	var finalText, visibleReply string

	for i := 0; i < maxAgentLoopIterations; i++ {
		req := llm.Request{System: "You are an autonomous agent executing one turn.", Messages: messages, Tools: tools}
		stream := make(chan llm.StreamEvent, 16)
		go rt.client.Stream(ctx, req, stream)

		var resp *llm.Response
		for ev := range stream {
			switch ev.Kind {
			case llm.StreamText:
				out <- TurnEvent{Kind: TurnAgentResponse, Text: ev.Text}
			case llm.StreamThinking:
				out <- TurnEvent{Kind: TurnAgentThinking, Text: ev.Text}
			case llm.StreamDone:
				if ev.Err != nil {
					return "", ev.Err
				}
				resp = ev.Response
			}
		}
		if resp == nil {
			return "", fmt.Errorf("agentruntime: llm stream produced no response")
		}
		finalText += resp.Text

		if len(resp.ToolCalls) == 0 {
			break
		}

		assistantMsg := llm.Message{Role: "assistant", Content: resp.Text, ToolCalls: resp.ToolCalls}
		messages = append(messages, assistantMsg)
		for _, call := range resp.ToolCalls {
			result, err := rt.dispatcher.Dispatch(ctx, in.AgentID, call)
			if err != nil {
				result = "error: " + err.Error()
			}
			out <- TurnEvent{Kind: TurnToolCall, ToolName: call.Name, Output: result}
			if call.Name == sendMessageToolName {
				if content, ok := call.Arguments["content"].(string); ok {
					visibleReply = content
				}
			}
			messages = append(messages, llm.Message{Role: "tool", ToolCallID: call.ID, Content: result})
		}
	}

	if visibleReply != "" {
		return visibleReply, nil
	}
	return finalText, nil
}

func composePrompt(in TurnInput, ctxData *ContextData) string {
	prompt := in.InputContent
	if len(ctxData.ChatHistory) == 0 {
		return prompt
	}
	history := "[Recent memory]\n"
	for _, m := range ctxData.ChatHistory {
		history += fmt.Sprintf("(%s/%s) %s: %s\n", m.MemoryType, m.InstanceID, m.Role, m.Content)
	}
	return history + "\n[Current turn]\n" + prompt
}

// runAfterHooks invokes each module's AfterEventExecution hook and
// applies any terminal status it returns to the controlling instance. A
// hook that fails is logged and skipped.
func (rt *Runtime) runAfterHooks(ctx context.Context, in TurnInput, instances []*entity.ModuleInstance, ctxData *ContextData, finalOutput, eventID string) {
	for _, inst := range instances {
		hook, ok := rt.hooks[inst.ModuleClass]
		if !ok {
			continue
		}
		result, err := hook.AfterEventExecution(ctx, AfterEventParams{
			InputContent:  in.InputContent,
			FinalOutput:   finalOutput,
			EventID:       eventID,
			CtxData:       ctxData,
			Instance:      inst,
			WorkingSource: in.WorkingSource,
		})
		if err != nil {
			rt.log.Error("agentruntime: after-event hook failed", "instance_id", inst.InstanceID, "error", err)
			continue
		}
		if result == nil || !result.TriggerCallback {
			continue
		}
		if err := rt.instances.SetStatus(ctx, result.InstanceID, result.InstanceStatus); err != nil {
			rt.log.Error("agentruntime: after-event status transition failed", "instance_id", result.InstanceID, "error", err)
		}
	}
}
