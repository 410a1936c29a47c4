package presenter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BaSui01/pptagent/llm/tools"
	"github.com/BaSui01/pptagent/types"
)

// 导航工具名
const (
	ToolNextSlide     = "next_slide"
	ToolPreviousSlide = "previous_slide"
	ToolGotoSlide     = "goto_slide"
)

const toolTimeout = 10 * time.Second

type gotoArgs struct {
	SlideNumber *int `json:"slide_number"`
}

// RegisterTools 把三个导航工具注册到 reg
func RegisterTools(reg tools.Registry, nav *Navigator) error {
	defs := []struct {
		schema types.ToolSchema
		fn     tools.Func
	}{
		{
			schema: types.ToolSchema{
				Name:        ToolNextSlide,
				Description: "Move to the next slide in the presentation",
				Parameters:  tools.ObjectSchema(nil),
			},
			fn: func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
				return tools.Message(nav.Next(ctx)), nil
			},
		},
		{
			schema: types.ToolSchema{
				Name:        ToolPreviousSlide,
				Description: "Move to the previous slide in the presentation",
				Parameters:  tools.ObjectSchema(nil),
			},
			fn: func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
				return tools.Message(nav.Previous(ctx)), nil
			},
		},
		{
			schema: types.ToolSchema{
				Name:        ToolGotoSlide,
				Description: "Jump to a specific slide number when user says 'go to slide X' or 'show slide X'",
				Parameters: tools.ObjectSchema(map[string]tools.Param{
					"slide_number": {
						Type:        "integer",
						Description: "The slide number to jump to (1-indexed)",
						Minimum:     tools.IntMin(1),
					},
				}, "slide_number"),
			},
			fn: func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
				var in gotoArgs
				if err := json.Unmarshal(args, &in); err != nil {
					return nil, fmt.Errorf("invalid goto_slide arguments: %w", err)
				}
				if in.SlideNumber == nil {
					return nil, fmt.Errorf("slide_number is required")
				}
				return tools.Message(nav.Goto(ctx, *in.SlideNumber)), nil
			},
		},
	}

	for _, d := range defs {
		if err := reg.Register(d.schema.Name, d.fn, tools.Metadata{Schema: d.schema, Timeout: toolTimeout}); err != nil {
			return err
		}
	}
	return nil
}
