// Package tgui builds Telegram HTML messages. Values of type H are already
// escaped; plain strings passed to the helpers are escaped for you.
package tgui
