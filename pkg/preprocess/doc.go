// Package preprocess holds the fitted transformers shared by training
// stages: the label codec and the standard scaler.
//
// Both are fit once through a constructor and are read-only afterwards.
// No method mutates a fitted instance, so a single value can be passed to
// every downstream stage and persisted without copying.
package preprocess
