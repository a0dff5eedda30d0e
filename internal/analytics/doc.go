// Package analytics analyzes the entity graph of a project.
//
// A Graph is built from a project export and answers the questions an
// investigator asks of the collected data: which entities are central,
// which groups belong together, which nodes stand out, and how two
// entities are linked. Graphs can be written as DOT or GraphML for
// external graph tools.
package analytics
