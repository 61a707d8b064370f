// Package chat is the ingestion and dispatch core of the bot.
//
// Inbound traffic flows Transport -> Session -> ParseLine -> Dispatcher:
//   - Transport keeps an IRC-over-websocket connection alive (gorilla/websocket)
//     and reconnects with backoff.
//   - Session performs the CAP/PASS/NICK/JOIN handshake, splits frames into
//     lines and routes each parsed Event.
//   - ParseLine classifies a line as chat, ping, join or ignored. Tags are read
//     with ParseTags into a key/value map.
//   - Dispatcher looks commands up in the Registry, applies badge authorization
//     and a per-user rate limit, and runs handlers on a bounded Pool. Plain chat
//     goes through the moderation Filter.
//
// Outbound traffic is queued in the Mailbox and flushed by Mailbox.Run on a
// short interval, paced to the chat rate limit.
package chat
