// Package fat formats block devices with FAT16, FAT32 or exFAT file
// systems, and inspects existing volumes: which of the three layouts is
// present, the volume label and the number of free clusters.
//
// Formatting plans a geometry from the device size (see Plan), then writes
// a fresh MBR with a single partition, the boot region, the allocation
// tables and an empty root directory. Cluster and partition alignment
// follow the SD card association recommendations, so the result suits
// flash media.
//
// Only 512 byte sectors are supported. FAT12 is neither written nor
// recognized.
package fat
