package gcpbatch

// resourceRequirements mirrors the teacher's ResourceRequirements, relocated
// here since GCP Batch is the only provider in this tree that submits
// containerized compute rather than interpreting a circuit/source directly.
type resourceRequirements struct {
	CPUMillis             int64
	MemoryMiB             int64
	MaxRunDurationSeconds int64
}

// presets mirrors the teacher's resolveBuiltinProfile hard-coded fallback.
// Tasks never request a tier, so resolveResources always picks one of these
// by shot count.
var presets = map[string]resourceRequirements{
	"small":  {CPUMillis: 2000, MemoryMiB: 2048, MaxRunDurationSeconds: 1800},
	"medium": {CPUMillis: 4000, MemoryMiB: 4096, MaxRunDurationSeconds: 3600},
	"large":  {CPUMillis: 8000, MemoryMiB: 8192, MaxRunDurationSeconds: 7200},
	"xlarge": {CPUMillis: 16000, MemoryMiB: 16384, MaxRunDurationSeconds: 14400},
}

// resolveResources picks a resource preset by shot count as a proxy for
// task weight (HAL's task payload carries no resource hints of its own —
// unlike the teacher's SubmitJobRequest, a quantum/classical task doesn't
// name a machine type), then derives the Cloud Batch machine type from the
// resulting tier.
func resolveResources(shots int) (resourceRequirements, string, bool) {
	profile := "small"
	switch {
	case shots > 50000:
		profile = "xlarge"
	case shots > 10000:
		profile = "large"
	case shots > 1024:
		profile = "medium"
	}
	res := presets[profile]
	t := classify(res.CPUMillis, res.MemoryMiB)
	machineType, spotEligible := t.machineType()
	return res, machineType, spotEligible
}
