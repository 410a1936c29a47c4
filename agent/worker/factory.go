package worker

import (
	"go.uber.org/zap"

	"github.com/BaSui01/pptagent/agent/presenter"
	"github.com/BaSui01/pptagent/config"
)

// PresenterFactory 用全局配置与共享依赖为每个房间创建 Presenter。
// deps 在会话间共享
func PresenterFactory(cfg *config.Config, persona string, deps presenter.Deps) Factory {
	return func(job Job) Session {
		d := deps
		if d.Logger != nil {
			d.Logger = d.Logger.With(zap.String("job_id", job.ID))
		}
		return presenter.New(presenter.Config{
			Room:          job.Room,
			AgentIdentity: cfg.Worker.AgentIdentity,
			AgentName:     cfg.Worker.AgentName,
			Persona:       persona,
			LiveKit:       cfg.LiveKit,
			Realtime:      cfg.Realtime,
			Presenter:     cfg.Presenter,
		}, d)
	}
}
