package cmd

import (
	"log/slog"

	"github.com/voltflow/voltflow/pkg/handlers/aiagent"
	"github.com/voltflow/voltflow/pkg/handlers/chainread"
	"github.com/voltflow/voltflow/pkg/handlers/condition"
	"github.com/voltflow/voltflow/pkg/handlers/dbquery"
	"github.com/voltflow/voltflow/pkg/handlers/httprequest"
	"github.com/voltflow/voltflow/pkg/handlers/logmsg"
	"github.com/voltflow/voltflow/pkg/handlers/merge"
	"github.com/voltflow/voltflow/pkg/handlers/notify"
	"github.com/voltflow/voltflow/pkg/persistence"
	"github.com/voltflow/voltflow/pkg/registry"
)

// NewRegistry builds the handler registry with every native node
// type registered. The agent handler is registered last so its tool
// bridge sees the full registry.
func NewRegistry(log *slog.Logger, memories persistence.AgentMemoryRepository) *registry.Registry {
	reg := registry.NewRegistry(log)

	reg.Register(httprequest.NewHandlerFactory())
	reg.Register(condition.NewHandlerFactory())
	reg.Register(logmsg.NewHandlerFactory())
	reg.Register(notify.NewHandlerFactory())
	reg.Register(dbquery.NewHandlerFactory())
	reg.Register(chainread.NewHandlerFactory())
	reg.Register(merge.NewHandlerFactory())
	reg.Register(aiagent.NewHandlerFactory(reg, memories))

	return reg
}
