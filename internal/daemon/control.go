package daemon

import (
	"context"

	"snipit/internal/ipc"
)

// HandleMessage answers control requests from the snipit CLI.
func (d *Daemon) HandleMessage(ctx context.Context, msg *ipc.Message) (*ipc.Message, error) {
	id := msg.Header.RequestID
	log := d.logger.WithContext(ctx)

	switch msg.Header.Type {
	case ipc.MsgStatusRequest:
		return ipc.NewResponse(ipc.MsgStatusResponse, id, d.Status(ctx))

	case ipc.MsgReload:
		n, err := d.Reload()
		resp := &ipc.ReloadResponse{Snippets: n}
		if err != nil {
			resp.Warning = err.Error()
		}
		log.Info("reloaded over control socket", "snippets", n)
		return ipc.NewResponse(ipc.MsgReloadResp, id, resp)

	case ipc.MsgSetSound:
		var req ipc.SoundRequest
		if err := ipc.Decode(msg.Payload, &req); err != nil {
			return ipc.NewErrorMessage(id, ipc.ErrInvalidRequest, "invalid sound request"), nil
		}
		var on bool
		if req.Toggle {
			on = d.ToggleSound()
		} else {
			on = d.SetSound(req.On)
		}
		return ipc.NewResponse(ipc.MsgSetSoundResp, id, &ipc.SoundResponse{Sound: on})

	case ipc.MsgReset:
		d.engine.Reset()
		return ipc.NewResponse(ipc.MsgResetResp, id, nil)

	case ipc.MsgShutdown:
		log.Info("shutdown requested over control socket")
		d.Stop()
		return ipc.NewResponse(ipc.MsgShutdownResp, id, nil)
	}

	log.Debug("unsupported control request", "type", msg.Header.Type.String())
	return ipc.NewErrorMessage(id, ipc.ErrInvalidRequest, "unsupported request "+msg.Header.Type.String()), nil
}
