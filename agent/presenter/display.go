package presenter

import (
	"context"
)

// AttributeUpdater 更新参会者属性，*livekit.RoomClient 实现了它
type AttributeUpdater interface {
	UpdateAttributes(ctx context.Context, room, identity string, attrs map[string]string) error
}

// RoomDisplay 通过代理参会者的 attributes 发布当前页
type RoomDisplay struct {
	Rooms    AttributeUpdater
	Room     string
	Identity string
}

// Show 实现 Display
func (d RoomDisplay) Show(ctx context.Context, v View) error {
	return d.Rooms.UpdateAttributes(ctx, d.Room, d.Identity, v.Attributes())
}
