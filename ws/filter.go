package ws

import (
	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"
	"github.com/hubbub-chat/hubbub/filter"
	"github.com/hubbub-chat/hubbub/globals"
	"github.com/hubbub-chat/hubbub/types"
)

func (c *Client) EvaluateFilterEvent(event *types.Event) bool {
	if event.TargetFilter == "" {
		return true
	}
	prog, err := expr.Compile(event.TargetFilter, expr.Env(filter.Env{}))
	if err != nil {
		globals.AppLogger.Error("could not compile filter", "error", err)
		return false
	}
	return c.RunFilterEvent(event, prog)
}

// RunFilterEvent evaluates a compiled target filter against this client. A
// nil program means an unfiltered event.
func (c *Client) RunFilterEvent(event *types.Event, prog *vm.Program) bool {
	if event == nil {
		return false
	}
	if prog == nil {
		return true
	}
	source := filter.Source{}
	if event.Source != nil {
		source.System = event.Source.System
		if event.Source.User != nil {
			source.User = filter.User{
				Id:     event.Source.User.Id,
				Name:   event.Source.User.Name,
				Status: event.Source.User.Status.String(),
			}
		}
	}
	target := filter.Target{
		Client: filter.Client{
			ClientId: c.ClientId,
		},
	}
	if user := c.User(); user != nil {
		target.User = filter.User{
			Id:     user.Id,
			Name:   user.Name,
			Status: user.Status.String(),
		}
	}
	room := filter.Room{Name: event.RoomName}
	if event.RoomName != "" {
		if r, ok := c.hub.repo.GetRoomByName(event.RoomName); ok {
			room.CreatorId = r.CreatorId
		}
	}
	env := filter.Env{
		Room:    room,
		Source:  source,
		Target:  target,
		Created: event.Created.Unix(),
		Name:    event.Name,
		Tags:    map[string]string(event.Tags),
	}
	res, err := expr.Run(prog, env)
	if err != nil {
		globals.AppLogger.Error("could not run filter", "error", err)
		return false
	}
	if bRes, ok := res.(bool); ok && bRes {
		return true
	}

	return false
}
