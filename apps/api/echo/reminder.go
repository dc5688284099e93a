package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type reminderApi struct {
	runner PassRunner
}

func registerReminderAPI(g *echo.Group, runner PassRunner) {
	api := reminderApi{runner: runner}
	g.POST("/reminders/run", api.run)
}

// run triggers a reminder pass synchronously and reports its summary. Safe to
// call while the cron daemon is running; the delivery ledger keeps the two
// from double-sending.
func (api *reminderApi) run(ctx echo.Context) error {
	summary, err := api.runner.RunReminderPass(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, summaryResponse{
		Instances: summary.Instances,
		Sent:      summary.Sent,
		Skipped:   summary.Skipped,
		Failed:    summary.Failed,
		Warnings:  summary.Warnings,
	})
}
