package events

import "strings"

const (
	ChannelPrefixTable  = "channel:table:"
	ChannelPrefixTyping = "channel:typing:"
)

// TableChannel is the Redis channel carrying changes of one table.
func TableChannel(table string) string {
	return ChannelPrefixTable + table
}

// TypingChannel is the Redis channel carrying typing events of one
// conversation.
func TypingChannel(conversation string) string {
	return ChannelPrefixTyping + conversation
}

// TableFromChannel extracts the table name from a table channel.
func TableFromChannel(channel string) (string, bool) {
	if !strings.HasPrefix(channel, ChannelPrefixTable) {
		return "", false
	}
	table := strings.TrimPrefix(channel, ChannelPrefixTable)
	return table, table != ""
}
