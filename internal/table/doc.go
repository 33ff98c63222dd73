// Package table reads entity lists and writes the fixed-width discovery table
// as delimited text.
//
// The output header is ID,NAME,TYPE,URL,YEAR. The legacy layout written by
// earlier tooling uses SRC and REFYEAR for the last two columns and FIN_REP or
// OTHER for TYPE. Both layouts are accepted wherever a table is read.
package table
