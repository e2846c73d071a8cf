// Package inference runs the disease detection model over uploaded
// images. The model lives in a Python script; the runner hands it the
// image through the filesystem and reads back the annotated result.
package inference
