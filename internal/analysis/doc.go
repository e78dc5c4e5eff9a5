// Package analysis turns emitted event tables into the physics results of
// the experiment: survival fractions against the closed-form expectation,
// the PID confusion matrix, RICH β resolution, and a fit of the decay
// length across station separations.
package analysis
