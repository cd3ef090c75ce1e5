// Package cdf reads and writes the NetCDF classic container format: a
// self-describing header of dimensions, attributes and typed variables
// followed by fixed-size variable data and an interleaved record region
// that grows along a single unlimited dimension.
//
// Both 32-bit (version 1) and 64-bit offset (version 2) files are read.
// Files are written big-endian with every header field and variable padded
// to a 4-byte boundary, so the output is readable by any classic reader.
//
// Usage:
//
//	f, err := cdf.Create("out.nc")
//	if err != nil {
//		return err
//	}
//	defer f.Close()
//	f.CreateDimension("time", cdf.Unlimited)
//	f.CreateDimension("x", 3)
//	v, _ := f.CreateVariable("temp", cdf.Double, "time", "x")
//	v.PutRecord(0, []float64{1, 2, 3})
//
// Reads of a file opened from disk use a read-only memory mapping where the
// platform allows it and fall back to reading the file into memory.
package cdf
