package utils

import (
	"fmt"
	"log"
	"strings"
)

// LogEvent writes one structured line:
//
//	[MODULE] action=... request_id=... msg=...
//
// msg should summarize; never pass passenger documents or secrets.
func LogEvent(requestID, module, action, message string) {
	log.Print(formatEvent(requestID, module, action, message))
}

func formatEvent(requestID, module, action, message string) string {
	rid := strings.TrimSpace(requestID)
	if rid == "" {
		rid = "-"
	}
	// one event per line
	msg := strings.NewReplacer("\r", " ", "\n", " ").Replace(message)
	return fmt.Sprintf("[%s] action=%s request_id=%s msg=%s", strings.ToUpper(module), action, rid, msg)
}
