package mcp

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/claude/repcoach/internal/coach"
	"github.com/claude/repcoach/internal/provider"
)

// --- Tool definitions ---

var toolListRoutines = mcp.NewTool("list_routines",
	mcp.WithDescription("List the workout routines saved in the athlete's tracker. Returns routine ids, titles and exercises."),
	mcp.WithNumber("page", mcp.Description("Page number, starting at 1. Defaults to 1.")),
	mcp.WithNumber("page_size", mcp.Description("Routines per page. Defaults to 10.")),
)

var toolStartWorkout = mcp.NewTool("start_workout",
	mcp.WithDescription("Start a coached workout from a routine. The coach announces the first exercise and waits for the athlete to say they are ready."),
	mcp.WithString("routine_id", mcp.Required(), mcp.Description("Routine id from list_routines")),
)

var toolSendInput = mcp.NewTool("send_input",
	mcp.WithDescription("Relay what the athlete said to the coach. Spoken rep counts (\"one two three\"), \"ready\", \"done\", \"skip\", \"repeat\", \"help\" and \"end workout\" are understood. Returns the coach replies and the new session state."),
	mcp.WithString("text", mcp.Required(), mcp.Description("The athlete's words")),
)

var toolGetSession = mcp.NewTool("get_session",
	mcp.WithDescription("Get the current workout state: exercise, set, rep count, rest or hold timer and the last coach message."),
)

var toolCompleteWorkout = mcp.NewTool("complete_workout",
	mcp.WithDescription("Finish the workout now, save it to the tracker and return the summary (duration, exercises, sets, reps)."),
)

// --- Tool handlers ---

func (h *handlers) listRoutines(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	page := req.GetInt("page", 1)
	size := req.GetInt("page_size", 10)
	if page < 1 || size < 1 {
		return mcp.NewToolResultError("page and page_size must be positive"), nil
	}

	routines, err := h.coach.ListRoutines(ctx, page, size)
	if err != nil {
		h.log.Error("mcp list_routines", "error", err)
		return toolError("listing routines", err), nil
	}
	return jsonResult(routines)
}

func (h *handlers) startWorkout(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("routine_id")
	if err != nil || id == "" {
		return mcp.NewToolResultError("routine_id parameter is required"), nil
	}

	st, err := h.coach.StartWorkout(ctx, id)
	if err != nil {
		h.log.Error("mcp start_workout", "routine", id, "error", err)
		return toolError("starting workout", err), nil
	}
	return jsonResult(st)
}

func (h *handlers) sendInput(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError("text parameter is required"), nil
	}

	reply, err := h.coach.SendInput(ctx, text)
	if err != nil {
		return toolError("sending input", err), nil
	}
	return jsonResult(reply)
}

func (h *handlers) getSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := h.coach.Status(ctx)
	if err != nil {
		h.log.Error("mcp get_session", "error", err)
		return toolError("reading session", err), nil
	}
	return jsonResult(st)
}

func (h *handlers) completeWorkout(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	done, err := h.coach.Complete(ctx)
	if err != nil {
		return toolError("completing workout", err), nil
	}
	return jsonResult(done)
}

// toolError turns err into a result the model can act on.
func toolError(action string, err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, coach.ErrNoActiveSession):
		return mcp.NewToolResultError("no workout in progress; call start_workout first")
	case errors.Is(err, coach.ErrSessionActive):
		return mcp.NewToolResultError("a workout is already in progress; finish it with complete_workout first")
	case errors.Is(err, provider.ErrNotConnected):
		return mcp.NewToolResultError("no tracker API key stored for this user")
	}
	return mcp.NewToolResultError(action + " failed: " + err.Error())
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	result, err := mcp.NewToolResultJSON(v)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}
