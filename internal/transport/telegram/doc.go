// Package telegram delivers dispatch payloads through the Telegram bot API.
//
// Voice notes go out as voice messages, audio clips as audio, converted video
// as video (streamed from the scratch artifact), images as photos and
// everything else as documents. Recipients are numeric chat ids or @channel
// names. Rate limits, 5xx responses and network failures are retried with
// exponential backoff; a retry_after from the server is waited out first.
package telegram
