package gcpbatch

import "testing"

func assertTier(t *testing.T, label string, got tier, want tier) {
	t.Helper()
	if got != want {
		t.Errorf("%s: tier = %v, want %v", label, got, want)
	}
}

func TestClassify_NoResources(t *testing.T) {
	assertTier(t, "no resources", classify(0, 0), tierSmall)
}

func TestClassify_LowResources(t *testing.T) {
	assertTier(t, "low resources", classify(250, 256), tierSmall)
}

func TestClassify_AtSmallThreshold(t *testing.T) {
	assertTier(t, "at small threshold", classify(smallCPUMillisMax, smallMemoryMiBMax), tierSmall)
}

func TestClassify_CPUExceedsSmall(t *testing.T) {
	assertTier(t, "cpu exceeds small", classify(smallCPUMillisMax+1, 256), tierMedium)
}

func TestClassify_MemoryExceedsMedium(t *testing.T) {
	assertTier(t, "memory exceeds medium", classify(1000, mediumMemoryMiBMax+1), tierLarge)
}

func TestClassify_CPUExceedsMedium(t *testing.T) {
	assertTier(t, "cpu exceeds medium", classify(mediumCPUMillisMax+1, 256), tierLarge)
}

func TestMachineType_Small(t *testing.T) {
	mt, spot := tierSmall.machineType()
	if mt != "e2-small" || !spot {
		t.Errorf("tierSmall.machineType() = (%q, %v)", mt, spot)
	}
}

func TestMachineType_Large(t *testing.T) {
	mt, spot := tierLarge.machineType()
	if mt != "e2-standard-16" || spot {
		t.Errorf("tierLarge.machineType() = (%q, %v)", mt, spot)
	}
}
