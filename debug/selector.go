package debug

type Tselector string

// ALWAYS
const (
	ALWAYS Tselector = "ALWAYS"
	ERROR  Tselector = "ERROR"
	NEVER  Tselector = "NEVER"
)

// ERR
const (
	ERR Tselector = "_ERR"
)

// Tests and benchmarks
const (
	TEST    Tselector = "TEST"
	BENCH   Tselector = "BENCH"
	LOADGEN Tselector = "LOADGEN"
)

// Gate
const (
	GATE     Tselector = "GATE"
	GATE_ERR Tselector = GATE + ERR
	WAITQ    Tselector = "WAITQ"
	TASK     Tselector = "TASK"
)

// Devices and registration
const (
	GATEDEV       Tselector = "GATEDEV"
	GATEDEV_ERR   Tselector = GATEDEV + ERR
	DEVREG        Tselector = "DEVREG"
	DEVREG_ERR    Tselector = DEVREG + ERR
	FUSEDEV       Tselector = "FUSEDEV"
	FUSEDEV_ERR   Tselector = FUSEDEV + ERR
	REFMAP_SUFFIX Tselector = "_REFMAP"
)

// Module lifecycle
const (
	COMPLD     Tselector = "COMPLD"
	COMPLD_ERR Tselector = COMPLD + ERR
	CONFIG     Tselector = "CONFIG"
	TRACING    Tselector = "TRACING"
)
