package mavlink

import "fmt"

// MessageType names a MAVLink message.
type MessageType string

const (
	TypeHeartbeat        MessageType = "HEARTBEAT"
	TypeAttitude         MessageType = "ATTITUDE"
	TypeLocalPositionNED MessageType = "LOCAL_POSITION_NED"
	TypeCommandLong      MessageType = "COMMAND_LONG"
)

// MAV_TYPE, MAV_AUTOPILOT and MAV_STATE values used by the fleet.
const (
	MavTypeQuadrotor    uint8 = 2
	MavTypeGCS          uint8 = 6
	MavAutopilotGeneric uint8 = 0
	MavAutopilotInvalid uint8 = 8
	MavStateUninit      uint8 = 0
	MavStateActive      uint8 = 4
)

// MAV_CMD values used by the command worker.
const (
	CmdConditionYaw       uint16 = 115
	CmdConditionChangeAlt uint16 = 113
)

// Message is any MAVLink message.
type Message interface {
	MessageType() MessageType
}

// Heartbeat is HEARTBEAT (#0).
type Heartbeat struct {
	Type         uint8  `json:"type"`
	Autopilot    uint8  `json:"autopilot"`
	BaseMode     uint8  `json:"base_mode"`
	CustomMode   uint32 `json:"custom_mode"`
	SystemStatus uint8  `json:"system_status"`
}

func (Heartbeat) MessageType() MessageType { return TypeHeartbeat }

// Attitude is ATTITUDE (#30). Angles in radians, rates in rad/s.
type Attitude struct {
	TimeBootMs uint32  `json:"time_boot_ms"`
	Roll       float64 `json:"roll"`
	Pitch      float64 `json:"pitch"`
	Yaw        float64 `json:"yaw"`
	RollSpeed  float64 `json:"rollspeed"`
	PitchSpeed float64 `json:"pitchspeed"`
	YawSpeed   float64 `json:"yawspeed"`
}

func (Attitude) MessageType() MessageType { return TypeAttitude }

// LocalPositionNED is LOCAL_POSITION_NED (#32). Metres and m/s.
type LocalPositionNED struct {
	TimeBootMs uint32  `json:"time_boot_ms"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	VX         float64 `json:"vx"`
	VY         float64 `json:"vy"`
	VZ         float64 `json:"vz"`
}

func (LocalPositionNED) MessageType() MessageType { return TypeLocalPositionNED }

// CommandLong is COMMAND_LONG (#76).
type CommandLong struct {
	TargetSystem    uint8      `json:"target_system"`
	TargetComponent uint8      `json:"target_component"`
	Command         uint16     `json:"command"`
	Confirmation    uint8      `json:"confirmation"`
	Params          [7]float64 `json:"params"`
}

func (CommandLong) MessageType() MessageType { return TypeCommandLong }

func (c CommandLong) String() string {
	return fmt.Sprintf("COMMAND_LONG{command: %d, params: %v}", c.Command, c.Params)
}
