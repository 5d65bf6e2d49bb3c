// Package routing picks the template that answers an incoming message.
//
// Resolution order:
//
//  1. a route of the template behind the contact's last outgoing message
//     (plain patterns by equality or containment first, then regex patterns);
//  2. the template whose message level equals that message's next level;
//  3. the first template whose trigger matches the input;
//  4. the start template.
package routing
