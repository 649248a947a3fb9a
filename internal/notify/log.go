package notify

import (
	"errors"

	"evsched/internal/controller"
	appLog "evsched/internal/log"
)

// Log returns an observer that writes every notification to the
// application log, at a level matching its variant.
func Log() controller.Observer {
	return controller.ObserverFuncs{
		OnNotify: func(n controller.Notification) {
			switch n.Variant {
			case controller.VariantError:
				appLog.Error("notification", errors.New(n.Message), "variant", string(n.Variant))
			case controller.VariantWarning:
				appLog.Warn("notification", "variant", string(n.Variant), "message", n.Message)
			default:
				appLog.Info("notification", "variant", string(n.Variant), "message", n.Message)
			}
		},
	}
}
