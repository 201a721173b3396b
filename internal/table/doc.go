// Package table reads session files and writes aggregate tables.
//
// Session files are CSV or XLSX with a header row naming the columns. Reading
// is streaming: a Reader yields one trial per row and holds the file open
// until it is closed. Output tables are written row by row, and CSV rows are
// flushed as they are written.
package table
