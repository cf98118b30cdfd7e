package gcpbatch

// tier classifies a task's resource footprint into a machine sizing class
// for Cloud Batch, replacing the teacher's SIMPLE/MEDIUM/COMPLEX GCP-service
// router (Cloud Tasks/Cloud Run Jobs/Cloud Batch) with a single-service
// equivalent: HAL's provider contract always submits through Cloud Batch, so
// what varies is the machine type and whether spot VMs are acceptable, not
// which service receives the job.
type tier int

const (
	tierSmall tier = iota
	tierMedium
	tierLarge
)

// Threshold constants carried over from the teacher's classifier: the exact
// boundaries a real deployment of this stack already tuned.
const (
	smallCPUMillisMax int64 = 500
	smallMemoryMiBMax int64 = 512

	mediumCPUMillisMax int64 = 4000
	mediumMemoryMiBMax int64 = 8192
)

// classify mirrors EvaluateJobComplexity's strictest-check-first decision
// tree. A zero resource field means "not specified" and never pushes a task
// into a higher tier on its own.
func classify(cpuMillis, memoryMiB int64) tier {
	if exceedsThreshold(cpuMillis, mediumCPUMillisMax) || exceedsThreshold(memoryMiB, mediumMemoryMiBMax) {
		return tierLarge
	}
	if exceedsThreshold(cpuMillis, smallCPUMillisMax) || exceedsThreshold(memoryMiB, smallMemoryMiBMax) {
		return tierMedium
	}
	return tierSmall
}

func exceedsThreshold(value, max int64) bool {
	return value > 0 && value > max
}

// machineType returns the Cloud Batch machine type for a tier. Heavy tasks
// get a larger machine and are not spot-eligible by default; small tasks
// default to spot VMs since a preemption is cheap to retry.
func (t tier) machineType() (machineType string, spotEligible bool) {
	switch t {
	case tierLarge:
		return "e2-standard-16", false
	case tierMedium:
		return "e2-standard-4", true
	default:
		return "e2-small", true
	}
}
