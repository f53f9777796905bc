// Package marionette encodes WebDriver commands as Marionette protocol
// messages and decodes the host's replies.
//
// A message is a four element JSON array. Requests are
// [0, id, name, params] and responses are [1, id, error, result] with
// exactly one of error and result set. Commands and results carry no type
// tag on the wire: commands are resolved from their name and the shape of
// their parameters, results from their shape alone, each by trying the
// catalog's candidates in a fixed order.
//
// Framing of messages on a byte stream lives in package wire.
package marionette
