package engine

import "fmt"

// Payload builders for the notification categories the marketplace emits.
// Pure constructors: no validation, no side effects.

// TaskStatusPayload announces a lifecycle change of a task run by an agent.
func TaskStatusPayload(taskID, taskTitle, status string) Payload {
	return Payload{
		Title:    "Task update",
		Body:     fmt.Sprintf("%s is now %s", taskTitle, status),
		Sound:    "default",
		Priority: PriorityHigh,
		Data: map[string]string{
			"type":   "task_status",
			"taskId": taskID,
			"status": status,
			"screen": "task_detail",
		},
	}
}

// AgentMessagePayload carries a new message from an agent to its owner.
func AgentMessagePayload(agentID, agentName, preview string) Payload {
	return Payload{
		Title:    agentName,
		Body:     preview,
		Sound:    "default",
		Priority: PriorityHigh,
		Data: map[string]string{
			"type":    "agent_message",
			"agentId": agentID,
			"screen":  "agent_chat",
		},
	}
}

// SystemAlertPayload is a platform-wide announcement.
func SystemAlertPayload(title, body string) Payload {
	return Payload{
		Title:    title,
		Body:     body,
		Priority: PriorityNormal,
		Data: map[string]string{
			"type":   "system_alert",
			"screen": "alerts",
		},
	}
}

// PaymentPayload confirms a received payment.
func PaymentPayload(amount, currency, txID string) Payload {
	return Payload{
		Title:    "Payment received",
		Body:     fmt.Sprintf("You received %s %s", amount, currency),
		Sound:    "default",
		Priority: PriorityHigh,
		Data: map[string]string{
			"type":   "payment",
			"txId":   txID,
			"screen": "wallet",
		},
	}
}

// BridgeCompletedPayload announces a finished cross-chain bridge transfer.
func BridgeCompletedPayload(bridgeID, amount, fromChain, toChain string) Payload {
	return Payload{
		Title:    "Bridge complete",
		Body:     fmt.Sprintf("%s bridged from %s to %s", amount, fromChain, toChain),
		Sound:    "default",
		Priority: PriorityNormal,
		Data: map[string]string{
			"type":     "bridge_completed",
			"bridgeId": bridgeID,
			"screen":   "bridge_history",
		},
	}
}
