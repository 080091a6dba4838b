package chatroom

import (
	"log/slog"

	"github.com/putto11262002/chatroom/core"
)

func (app *App) onUserConnected(userID string) {
	app.logger.Info("user online", slog.String("user", userID))
}

func (app *App) onUserDisconnected(userID string) {
	app.logger.Info("user offline", slog.String("user", userID))
}

func (app *App) onConnectionOpen(c *core.Conn) {
	app.logger.Debug("connection opened", slog.String("connection", c.SubscriberID()))
}

// onConnectionClose drops the connection from every room channel.
func (app *App) onConnectionClose(c *core.Conn) {
	app.broker.LeaveAll(c)
	app.logger.Debug("connection closed", slog.String("connection", c.SubscriberID()))
}
