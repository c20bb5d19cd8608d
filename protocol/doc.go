package protocol

// This package implements parsing and serialising of the frames exchanged with
// the realtime database over its WebSocket endpoint. The protocol is not
// documented upstream; what follows is what we have observed on the wire and
// the subset MarketDash relies on.
//
// - `Envelope` - One complete decoded frame. Either a `Control` or a `Data`
//                message.
// - `Control`  - Connection management sent by the server. We only care about
//                the handshake `Header` and the `Redirect`.
// - `Data`     - Queries sent by us, and the replies and status
//                acknowledgements sent back by the server.
//
// === General Syntax
//
// - every frame is a UTF-8 text frame containing a JSON object
// - the object has a one letter discriminator `t` and a body `d`
//
//   ```
//     {"t":"c","d":<control>}
//     {"t":"d","d":<data>}
//   ```
//
// === Handshake
//
// The server sends exactly one control frame as soon as the socket opens.
//
//  ```
//    < {"t":"c","d":{"t":"h","d":{"h":<host>,"s":<sessionID>,"ts":<epochMillis>,"v":<version>}}}
//  ```
//
// The server may instead ask us to reconnect to another host
//
//  ```
//    < {"t":"c","d":{"t":"r","d":<host>}}
//  ```
//
// === Data
//
//  ```
//    {"r":<requestID>,"a":"q"|"d","b":{"p":<path>,"h":<hash>,"s":"ok"|"fail","d":<json>}}
//  ```
//
// Every field is optional. Which ones are populated tells you what the
// message is.
//
// - query:  `r`, `a` = "q", `b.p` and `b.h`
// - reply:  `a` = "d", `b.p` and `b.d`. Replies do not carry a request ID.
// - status: `r` and `b.s`. Sometimes `b.d` too, which we ignore.
//
// A query is answered by a reply followed by a status for the same request
// ID.
//
//  ```
//    > {"t":"d","d":{"r":1,"a":"q","b":{"p":"/clientUnits/unit/all","h":""}}}
//    < {"t":"d","d":{"a":"d","b":{"p":"clientUnits/unit/all","d":{...}}}}
//    < {"t":"d","d":{"r":1,"b":{"s":"ok","d":{}}}}
//  ```
//
// The hash is always sent empty. The server probably supports conditional
// fetches keyed on a previously seen hash, we don't use them.
//
// === Chunking
//
// Large frames are split. The server first sends a frame that contains
// nothing but a decimal integer N, followed by N frames. The N frames are
// concatenated, without any delimiter, to produce the real frame.
//
//  ```
//    < 3
//    < {"t":"d","d":{"a":"d","b":
//    < {"p":"Clients/vendor/activeMenu/categories",
//    < "d":{...}}}}
//  ```
//
