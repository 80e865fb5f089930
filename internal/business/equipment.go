package business

// EquipmentType identifies one of the measurable device kinds installed at a facility.
type EquipmentType string

// Equipment types, in the column order used across pricing and documents.
const (
	PHMeter                    EquipmentType = "ph_meter"
	DifferentialPressureMeter  EquipmentType = "differential_pressure_meter"
	TemperatureMeter           EquipmentType = "temperature_meter"
	DischargeCurrentMeter      EquipmentType = "discharge_current_meter"
	FanCurrentMeter            EquipmentType = "fan_current_meter"
	PumpCurrentMeter           EquipmentType = "pump_current_meter"
	Gateway                    EquipmentType = "gateway"
	VPNWired                   EquipmentType = "vpn_wired"
	VPNWireless                EquipmentType = "vpn_wireless"
	ExplosionProofDiffPressure EquipmentType = "explosion_proof_differential_pressure_meter_domestic"
	ExplosionProofTemperature  EquipmentType = "explosion_proof_temperature_meter_domestic"
	ExpansionDevice            EquipmentType = "expansion_device"
	Relay8Ch                   EquipmentType = "relay_8ch"
	Relay16Ch                  EquipmentType = "relay_16ch"
	MainBoardReplacement       EquipmentType = "main_board_replacement"
	MultipleStack              EquipmentType = "multiple_stack"
)

// EquipmentTypes lists every type in canonical order.
var EquipmentTypes = []EquipmentType{
	PHMeter,
	DifferentialPressureMeter,
	TemperatureMeter,
	DischargeCurrentMeter,
	FanCurrentMeter,
	PumpCurrentMeter,
	Gateway,
	VPNWired,
	VPNWireless,
	ExplosionProofDiffPressure,
	ExplosionProofTemperature,
	ExpansionDevice,
	Relay8Ch,
	Relay16Ch,
	MainBoardReplacement,
	MultipleStack,
}

var equipmentNames = map[EquipmentType]string{
	PHMeter:                    "PH센서",
	DifferentialPressureMeter:  "차압계",
	TemperatureMeter:           "온도계",
	DischargeCurrentMeter:      "배출전류계",
	FanCurrentMeter:            "송풍전류계",
	PumpCurrentMeter:           "펌프전류계",
	Gateway:                    "게이트웨이",
	VPNWired:                   "VPN(유선)",
	VPNWireless:                "VPN(무선)",
	ExplosionProofDiffPressure: "방폭차압계(국산)",
	ExplosionProofTemperature:  "방폭온도계(국산)",
	ExpansionDevice:            "확장디바이스",
	Relay8Ch:                   "중계기(8채널)",
	Relay16Ch:                  "중계기(16채널)",
	MainBoardReplacement:       "메인보드교체",
	MultipleStack:              "복수굴뚝",
}

// Name returns the Korean display name.
func (t EquipmentType) Name() string {
	if name, ok := equipmentNames[t]; ok {
		return name
	}
	return string(t)
}

// Valid reports whether t is a known equipment type.
func (t EquipmentType) Valid() bool {
	_, ok := equipmentNames[t]
	return ok
}

// Equipment holds the installed quantity per type.
type Equipment struct {
	PHMeter                    int `json:"ph_meter"`
	DifferentialPressureMeter  int `json:"differential_pressure_meter"`
	TemperatureMeter           int `json:"temperature_meter"`
	DischargeCurrentMeter      int `json:"discharge_current_meter"`
	FanCurrentMeter            int `json:"fan_current_meter"`
	PumpCurrentMeter           int `json:"pump_current_meter"`
	Gateway                    int `json:"gateway"`
	VPNWired                   int `json:"vpn_wired"`
	VPNWireless                int `json:"vpn_wireless"`
	ExplosionProofDiffPressure int `json:"explosion_proof_differential_pressure_meter_domestic"`
	ExplosionProofTemperature  int `json:"explosion_proof_temperature_meter_domestic"`
	ExpansionDevice            int `json:"expansion_device"`
	Relay8Ch                   int `json:"relay_8ch"`
	Relay16Ch                  int `json:"relay_16ch"`
	MainBoardReplacement       int `json:"main_board_replacement"`
	MultipleStack              int `json:"multiple_stack"`
}

// Quantity returns the installed count for the given type.
func (e Equipment) Quantity(t EquipmentType) int {
	switch t {
	case PHMeter:
		return e.PHMeter
	case DifferentialPressureMeter:
		return e.DifferentialPressureMeter
	case TemperatureMeter:
		return e.TemperatureMeter
	case DischargeCurrentMeter:
		return e.DischargeCurrentMeter
	case FanCurrentMeter:
		return e.FanCurrentMeter
	case PumpCurrentMeter:
		return e.PumpCurrentMeter
	case Gateway:
		return e.Gateway
	case VPNWired:
		return e.VPNWired
	case VPNWireless:
		return e.VPNWireless
	case ExplosionProofDiffPressure:
		return e.ExplosionProofDiffPressure
	case ExplosionProofTemperature:
		return e.ExplosionProofTemperature
	case ExpansionDevice:
		return e.ExpansionDevice
	case Relay8Ch:
		return e.Relay8Ch
	case Relay16Ch:
		return e.Relay16Ch
	case MainBoardReplacement:
		return e.MainBoardReplacement
	case MultipleStack:
		return e.MultipleStack
	}
	return 0
}

// Total returns the number of installed devices across all types.
func (e Equipment) Total() int {
	total := 0
	for _, t := range EquipmentTypes {
		if q := e.Quantity(t); q > 0 {
			total += q
		}
	}
	return total
}

// scanTargets returns pointers in canonical order for row scanning.
func (e *Equipment) scanTargets() []any {
	return []any{
		&e.PHMeter,
		&e.DifferentialPressureMeter,
		&e.TemperatureMeter,
		&e.DischargeCurrentMeter,
		&e.FanCurrentMeter,
		&e.PumpCurrentMeter,
		&e.Gateway,
		&e.VPNWired,
		&e.VPNWireless,
		&e.ExplosionProofDiffPressure,
		&e.ExplosionProofTemperature,
		&e.ExpansionDevice,
		&e.Relay8Ch,
		&e.Relay16Ch,
		&e.MainBoardReplacement,
		&e.MultipleStack,
	}
}
