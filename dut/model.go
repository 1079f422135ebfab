// Package dut is the seam between the bridge and the simulated core. The core
// is an opaque, cycle-stepped model reached only through named ports.
package dut

// Port names a model input or output.
type Port string

// Model is a cycle-stepped simulation model of a core.
type Model interface {
	// Eval settles the combinational logic for the current input values.
	Eval()

	// SetInput drives an input port. The value takes effect on the next
	// Eval.
	SetInput(port Port, value uint64)

	// Output reads an output port as of the last Eval.
	Output(port Port) uint64
}

// Clock, reset and boot inputs.
const (
	Clk         Port = "clk_i"
	RstN        Port = "rst_ni"
	TestEn      Port = "test_en_i"
	FetchEnable Port = "fetch_enable_i"
	BootAddr    Port = "boot_addr_i"
)

// Instruction port. The model asserts InstrGnt when it accepts a fetch; the
// bridge answers one cycle later on the input side.
const (
	InstrGnt    Port = "instr_gnt_o"
	InstrAddr   Port = "instr_addr_o"
	InstrRValid Port = "instr_rvalid_i"
	InstrRData  Port = "instr_rdata_i"
	InstrErr    Port = "instr_err_i"
)

// Data port. Request fields are valid in the cycle DataGnt is asserted.
const (
	DataGnt    Port = "data_gnt_o"
	DataAddr   Port = "data_addr_o"
	DataWE     Port = "data_we_o"
	DataBE     Port = "data_be_o"
	DataWData  Port = "data_wdata_o"
	DataRValid Port = "data_rvalid_i"
	DataRData  Port = "data_rdata_i"
	DataErr    Port = "data_err_i"
)

// Control-flow signals used for rollback.
const (
	PerfJump    Port = "perf_jump_o"
	PerfTBranch Port = "perf_tbranch_o"
)

// RVFI retirement outputs.
const (
	RVFIValid    Port = "rvfi_valid"
	RVFIOrder    Port = "rvfi_order"
	RVFIInsn     Port = "rvfi_insn"
	RVFITrap     Port = "rvfi_trap"
	RVFIHalt     Port = "rvfi_halt"
	RVFIIntr     Port = "rvfi_intr"
	RVFIRS1Addr  Port = "rvfi_rs1_addr"
	RVFIRS2Addr  Port = "rvfi_rs2_addr"
	RVFIRS1RData Port = "rvfi_rs1_rdata"
	RVFIRS2RData Port = "rvfi_rs2_rdata"
	RVFIRDAddr   Port = "rvfi_rd_addr"
	RVFIRDWData  Port = "rvfi_rd_wdata"
	RVFIPCRData  Port = "rvfi_pc_rdata"
	RVFIPCWData  Port = "rvfi_pc_wdata"
	RVFIMemAddr  Port = "rvfi_mem_addr"
	RVFIMemRMask Port = "rvfi_mem_rmask"
	RVFIMemWMask Port = "rvfi_mem_wmask"
	RVFIMemRData Port = "rvfi_mem_rdata"
	RVFIMemWData Port = "rvfi_mem_wdata"
)

// Reader gives read access to the model ports as last driven and evaluated.
type Reader interface {
	// Output reads an output port.
	Output(port Port) uint64
	// Input returns the value last driven on an input port.
	Input(port Port) uint64
}
