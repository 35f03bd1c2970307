// Package domain holds the records shared by every layer: integrations and
// their tokens, locations, reviews and replies, contacts, campaigns and
// per-recipient delivery rows, plus the error kinds callers match on.
//
// Nothing here talks to a database or the network. Other internal packages
// import domain; domain imports none of them.
package domain
