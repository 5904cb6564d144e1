// Package capture turns a low-rate display frame stream into fixed-length
// motion-JPEG segment files registered with the store.
package capture
