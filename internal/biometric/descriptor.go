package biometric

import "crypto/sha256"

// DescriptorFromImage derives the deterministic fallback descriptor from raw
// image bytes. Each hash byte maps to a float in [0,1], giving a fixed-length
// vector whose distance to an identical image is exactly zero.
func DescriptorFromImage(image []byte) Descriptor {
	digest := sha256.Sum256(image)

	descriptor := make(Descriptor, DescriptorLength)
	for i := 0; i < DescriptorLength; i++ {
		descriptor[i] = float64(digest[i]) / 255.0
	}
	return descriptor
}

// averageDescriptors folds multiple per-image descriptors into one enrollment
// descriptor (fallback mode enrolls the mean vector).
func averageDescriptors(descriptors []Descriptor) Descriptor {
	if len(descriptors) == 0 {
		return nil
	}

	avg := make(Descriptor, DescriptorLength)
	for _, d := range descriptors {
		for i := range avg {
			avg[i] += d[i]
		}
	}
	for i := range avg {
		avg[i] /= float64(len(descriptors))
	}
	return avg
}
