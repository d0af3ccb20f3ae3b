/*
Package protocol defines the messages exchanged between a controller and an agent, and their wire encoding.

The agent dials the controller and the two sides exchange WebSocket frames over that one connection:

1. The agent sends a greeting text frame once connected. Controllers ignore it.
2. The controller sends a binary frame containing exactly one encoded Request.
3. The agent executes the request and replies with a binary frame containing exactly one encoded Result.
4. Steps 2 and 3 repeat. The controller never sends a second request before it has read the result of the first one,
so there are no correlation IDs.

Text frames are diagnostics only. A text frame sent by the controller is echoed back prefixed with "Echo:".
If the agent cannot encode a result, it sends a text frame starting with EncodeFailurePrefix in its place.

Requests and results are tagged unions encoded as CBOR maps with small integer keys, of which exactly one is present.
Variant payloads are CBOR arrays, so their fields are serialized in declaration order.
*/
package protocol
