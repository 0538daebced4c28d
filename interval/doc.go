/*Package interval loads the BED positions files samwrap hands to samtools,
  validating them before any child process is spawned and merging
  overlapping or touching intervals into a per-chromosome union.
  (Note the 'union'.  Overlapping intervals are merged, not tracked
  separately; samtools treats -L regions as a coverage mask, so nothing is
  lost by normalizing.)
  Every position must fit in a PosType, which is defined as int32 since
  that's what BAM files are limited to.
*/
package interval
