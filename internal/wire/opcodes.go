// ABOUTME: Wire message type codes for the VoidLux mesh protocol.
// ABOUTME: The authoritative subset wired into the core orchestration loop; the rest are recognized but unwired placeholders.
package wire

// Type is the single-byte discriminator carried in every framed JSON message.
type Type uint8

const (
	TypeHello Type = 0x01
	TypePex   Type = 0x05
	TypePing  Type = 0x06
	TypePong  Type = 0x07

	TypeTaskCreate   Type = 0x10
	TypeTaskClaim    Type = 0x11
	TypeTaskUpdate   Type = 0x12
	TypeTaskComplete Type = 0x13
	TypeTaskFail     Type = 0x14
	TypeTaskCancel   Type = 0x15

	TypeTaskSyncReq Type = 0x30
	TypeTaskSyncRsp Type = 0x31

	TypeAgentRegister   Type = 0x20
	TypeAgentHeartbeat  Type = 0x21
	TypeAgentDeregister Type = 0x22

	TypeEmperorHeartbeat Type = 0x40
	TypeElectionStart    Type = 0x41
	TypeElectionVictory  Type = 0x42

	TypeSwarmNodeRegister Type = 0xB0
	TypeSwarmNodeStatus   Type = 0xB1

	// TypeBoardPost carries a gossiped BoardMessage; board posts travel by
	// push gossip only (there is no board anti-entropy sync).
	TypeBoardPost Type = 0x50
)

// Name returns a human-readable label for logging, falling back to "UNKNOWN"
// for opcodes outside the authoritative subset (the
// marketplace/DHT/offer-pay extensions — decoded but never acted on).
func (t Type) Name() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

var typeNames = map[Type]string{
	TypeHello:             "HELLO",
	TypePex:                "PEX",
	TypePing:               "PING",
	TypePong:               "PONG",
	TypeTaskCreate:         "TASK_CREATE",
	TypeTaskClaim:          "TASK_CLAIM",
	TypeTaskUpdate:         "TASK_UPDATE",
	TypeTaskComplete:       "TASK_COMPLETE",
	TypeTaskFail:           "TASK_FAIL",
	TypeTaskCancel:         "TASK_CANCEL",
	TypeTaskSyncReq:        "TASK_SYNC_REQ",
	TypeTaskSyncRsp:        "TASK_SYNC_RSP",
	TypeAgentRegister:      "AGENT_REGISTER",
	TypeAgentHeartbeat:     "AGENT_HEARTBEAT",
	TypeAgentDeregister:    "AGENT_DEREGISTER",
	TypeEmperorHeartbeat:   "EMPEROR_HEARTBEAT",
	TypeElectionStart:      "ELECTION_START",
	TypeElectionVictory:    "ELECTION_VICTORY",
	TypeSwarmNodeRegister:  "SWARM_NODE_REGISTER",
	TypeSwarmNodeStatus:    "SWARM_NODE_STATUS",
	TypeBoardPost:          "BOARD_POST",
}

// Known reports whether t is part of the authoritative subset this node acts
// on. Opcodes outside this set are still framed and decoded correctly (the
// codec only cares about the length prefix), but handlers log-and-drop them.
func (t Type) Known() bool {
	_, ok := typeNames[t]
	return ok
}
